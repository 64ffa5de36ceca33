// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2020-2022 Snowplow Analytics Ltd. All rights reserved.

package testutil

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	pubsubV1 "google.golang.org/genproto/googleapis/pubsub/v1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// PubSubTestProject is the project every mock topic is created under
const PubSubTestProject = "project-test"

// InitMockPubsubServer creates an in-memory PubSub server holding the given topics
func InitMockPubsubServer(topics ...string) *pstest.Server {
	ctx := context.Background()
	srv := pstest.NewServer()

	for _, topic := range topics {
		_, err := srv.GServer.CreateTopic(ctx, &pubsubV1.Topic{Name: fmt.Sprintf("projects/%s/topics/%s", PubSubTestProject, topic)})
		if err != nil {
			panic(err)
		}
	}

	return srv
}

// MockPubsubClientFunc returns a client factory connected to the mock server
// without TLS
func MockPubsubClientFunc(srv *pstest.Server) func(ctx context.Context) (*pubsub.Client, error) {
	return func(ctx context.Context) (*pubsub.Client, error) {
		conn, err := grpc.Dial(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, err
		}
		return pubsub.NewClient(ctx, PubSubTestProject, option.WithGRPCConn(conn))
	}
}
