// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2020-2022 Snowplow Analytics Ltd. All rights reserved.

package config

import (
	"errors"
	"os"
	"strings"

	"github.com/caarlos0/env/v6"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
)

// Decoder is the interface that wraps the Decode method.
type Decoder interface {
	// Decode decodes onto target given DecoderOptions.
	// The target argument must be a pointer to an allocated structure.
	Decode(opts *DecoderOptions, target interface{}) error
}

// DecoderOptions represent the options for a Decoder.
// The zero value of DecoderOptions means no-prefix/nil-input,
// which should be usable by the Decoders.
type DecoderOptions struct {
	Prefix string
	Input  hcl.Body
}

// envDecoder implements Decoder.
type envDecoder struct{}

// Decode populates target from the environment.
// The target argument must be a pointer to an allocated structure.
// If the target is nil, we assume is not decodable.
func (e *envDecoder) Decode(opts *DecoderOptions, target interface{}) error {
	if target == nil {
		return nil
	}

	var prefix string
	if opts != nil {
		prefix = opts.Prefix
	}

	return env.Parse(target, env.Options{Prefix: prefix})
}

// hclDecoder implements Decoder.
type hclDecoder struct {
	EvalContext *hcl.EvalContext
}

// Decode populates target given HCL input through DecoderOptions.
// If the HCL input is nil, there is nothing to do and the target
// stays unaffected.
func (h *hclDecoder) Decode(opts *DecoderOptions, target interface{}) error {
	if opts == nil {
		return errors.New("missing DecoderOptions for hclDecoder")
	}

	src := opts.Input
	if src == nil {
		return nil // zero value ok
	}

	if target == nil {
		return nil
	}

	diag := gohcl.DecodeBody(src, h.EvalContext, target)
	if len(diag) > 0 {
		return diag
	}

	return nil
}

// CreateHclContext creates the *hcl.EvalContext used in decoding HCL.
//
// Environment variables can be referenced either as a function call or as
// a variable:
// ```
// connection_string = env("EVENTHUB_CONNECTION_STRING")
// name              = env.EVENTHUB_NAME
// ```
func CreateHclContext() *hcl.EvalContext {
	return &hcl.EvalContext{
		Functions: map[string]function.Function{
			"env": envFunc(),
		},
		Variables: map[string]cty.Value{
			"env": cty.ObjectVal(envVarsMap(os.Environ())),
		},
	}
}

// envFunc returns the value of the environment variable named by its only argument.
func envFunc() function.Function {
	return function.New(&function.Spec{
		Params: []function.Parameter{
			{
				Name:         "key",
				Type:         cty.String,
				AllowNull:    false,
				AllowUnknown: false,
			},
		},
		Type: function.StaticReturnType(cty.String),
		Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
			return cty.StringVal(os.Getenv(args[0].AsString())), nil
		},
	})
}

func envVarsMap(environ []string) map[string]cty.Value {
	envMap := make(map[string]cty.Value)
	for _, s := range environ {
		key, value, found := strings.Cut(s, "=")
		if !found || key == "" {
			continue
		}
		envMap[key] = cty.StringVal(value)
	}

	return envMap
}
