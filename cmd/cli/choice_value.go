// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2020-2022 Snowplow Analytics Ltd. All rights reserved.

package cli

import (
	"fmt"
	"strings"
)

// choiceValue is a cli.Generic flag value limited to a fixed set of names.
// Matching ignores case and surrounding space and keeps the listed spelling.
type choiceValue struct {
	choices  []string
	selected string
}

func newChoiceValue(choices []string) *choiceValue {
	return &choiceValue{choices: choices}
}

// Set implements cli.Generic
func (c *choiceValue) Set(value string) error {
	wanted := strings.TrimSpace(value)
	for _, choice := range c.choices {
		if strings.EqualFold(choice, wanted) {
			c.selected = choice
			return nil
		}
	}
	return fmt.Errorf("unknown value %q; allowed values are %s", value, strings.Join(c.choices, ", "))
}

// String returns the selected name, empty until Set succeeds
func (c *choiceValue) String() string {
	return c.selected
}
