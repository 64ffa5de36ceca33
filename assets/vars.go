// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2020-2022 Snowplow Analytics Ltd. All rights reserved.

package assets

import (
	"runtime"
	"strings"
)

// GetPathToAssetsDir returns the absolute path to the directory holding this
// file, so test configurations can live in one place.
func GetPathToAssetsDir() string {
	_, filename, _, _ := runtime.Caller(0)

	parts := strings.Split(filename, "/")
	dirPath := strings.Join(parts[:len(parts)-1], "/")
	return dirPath
}

// AssetsRootDir is the absolute path to `assets/`
var AssetsRootDir = GetPathToAssetsDir()
