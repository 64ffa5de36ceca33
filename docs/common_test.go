// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2020-2022 Snowplow Analytics Ltd. All rights reserved.

package docs

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snowplow-devops/event-relay/assets"
	"github.com/snowplow-devops/event-relay/config"
)

func TestMain(m *testing.M) {
	os.Clearenv()

	exitVal := m.Run()

	os.Exit(exitVal)
}

var configurationDocsDir = filepath.Join(assets.AssetsRootDir, "docs", "configuration")

func checkComponentForZeros(t *testing.T, component interface{}) {
	assert := assert.New(t)

	// Indirect dereferences the pointer for us
	valOfComponent := reflect.Indirect(reflect.ValueOf(component))
	typeOfComponent := valOfComponent.Type()

	var zerosFound []string

	for i := 0; i < typeOfComponent.NumField(); i++ {
		if valOfComponent.Field(i).IsZero() {
			zerosFound = append(zerosFound, typeOfComponent.Field(i).Name)
		}
	}

	assert.Equal(0, len(zerosFound), fmt.Sprintf("Example config for %v results in zero values for: %v - either fields are missing in the example, or are set to zero value", typeOfComponent, zerosFound))
}

func getConfigFromFilepath(t *testing.T, filepath string) *config.Config {
	t.Setenv(config.ConfigFileEnvVar, filepath)

	c, err := config.NewConfig()
	require.Nil(t, err)
	require.NotNil(t, c)

	return c
}
