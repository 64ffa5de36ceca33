// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2020-2022 Snowplow Analytics Ltd. All rights reserved.

package common

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials/stscreds"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// TmpDirName is where credentials materialised at runtime are stored
const TmpDirName = "tmp_event_relay"

// --- Cloud Helpers

// GetGCPServiceAccountFromBase64 will take a base64 encoded string
// and attempt to create a JSON file on disk within the temporary directory
// for use with the GOOGLE_APPLICATION_CREDENTIALS environment variable
func GetGCPServiceAccountFromBase64(serviceAccountB64 string) (string, error) {
	sDec, err := base64.StdEncoding.DecodeString(serviceAccountB64)
	if err != nil {
		return "", errors.Wrap(err, "Failed to Base64 decode service account")
	}

	if err := os.MkdirAll(TmpDirName, 0700); err != nil {
		return "", errors.Wrap(err, "Failed to create temporary directory for service account")
	}

	targetFile := filepath.Join(TmpDirName, fmt.Sprintf("event-relay-service-account-%s.json", uuid.New().String()))

	if err := os.WriteFile(targetFile, sDec, 0600); err != nil {
		return "", errors.Wrap(err, "Failed to write decoded service account to temporary file")
	}

	return targetFile, nil
}

// DeleteTemporaryDir deletes the temp directory we created to store credentials
func DeleteTemporaryDir() error {
	return os.RemoveAll(TmpDirName)
}

// GetAWSSession is a general tool to handle generating an AWS session
// using the standard auth flow.  We also have the ability to pass a role ARN
// to allow for roles to be assumed in cross-account access flows.
func GetAWSSession(region string, roleARN string, endpoint string) (*session.Session, *aws.Config) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = transport.MaxIdleConns
	httpClient := &http.Client{
		Transport: transport,
	}

	awsConfig := aws.Config{
		Region:     aws.String(region),
		HTTPClient: httpClient,
	}
	if endpoint != "" {
		awsConfig.Endpoint = aws.String(endpoint)
	}

	sess := session.Must(session.NewSessionWithOptions(session.Options{
		SharedConfigState: session.SharedConfigEnable,
		Config:            awsConfig,
	}))

	var cfg *aws.Config
	if roleARN != "" {
		cfg = &aws.Config{
			Credentials: stscreds.NewCredentials(sess, roleARN),
			Region:      aws.String(region),
			HTTPClient:  httpClient,
		}
	}

	return sess, cfg
}

// --- Generic Helpers

// GetAverageFromDuration will divide a duration by a total number and then return
// this value as another duration
func GetAverageFromDuration(sum time.Duration, total int64) time.Duration {
	if total > 0 {
		return time.Duration(int64(sum)/total) * time.Nanosecond
	}
	return time.Duration(0)
}

// CreateTLSConfiguration creates a TLS configuration for use in a sink
func CreateTLSConfiguration(certFile string, keyFile string, caFile string, skipVerify bool) (*tls.Config, error) {
	if certFile == "" || keyFile == "" {
		return nil, nil
	}

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, err
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		return nil, err
	}

	if caFile != "" {
		caCert, err := os.ReadFile(caFile)
		if err != nil {
			return nil, err
		}
		caCertPool.AppendCertsFromPEM(caCert)
	}

	return &tls.Config{
		Certificates:       []tls.Certificate{cert},
		RootCAs:            caCertPool,
		InsecureSkipVerify: skipVerify,
	}, nil
}
