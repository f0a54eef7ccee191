// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package interop

import (
	"encoding/json"
	"sort"
	"strconv"
)

// Well-known configuration keys.
const (
	ConfigColorMode       = "ohos.system.colorMode"
	ConfigLanguage        = "ohos.system.language"
	ConfigFontScale       = "ohos.system.fontSizeScale"
	ConfigFontWeightScale = "ohos.system.fontWeightScale"
	ConfigDirection       = "ohos.application.direction"
	ConfigDensity         = "ohos.application.densitydpi"
)

// Configuration is an immutable snapshot of system configuration items. It is
// shared by reference and replaced wholesale, never mutated in place.
type Configuration struct {
	items map[string]string
}

// NewConfiguration copies items into a new snapshot. Empty values are treated
// as unset and dropped.
func NewConfiguration(items map[string]string) *Configuration {
	c := &Configuration{items: make(map[string]string, len(items))}
	for k, v := range items {
		if v != "" {
			c.items[k] = v
		}
	}
	return c
}

// Get returns the value stored for key.
func (c *Configuration) Get(key string) (string, bool) {
	if c == nil {
		return "", false
	}
	v, ok := c.items[key]
	return v, ok
}

// ColorMode returns the color mode item, or "" when unset.
func (c *Configuration) ColorMode() string {
	v, _ := c.Get(ConfigColorMode)
	return v
}

// Language returns the language item, or "" when unset.
func (c *Configuration) Language() string {
	v, _ := c.Get(ConfigLanguage)
	return v
}

// FontScale returns the font scale item, or 1 when unset or malformed.
func (c *Configuration) FontScale() float64 {
	v, ok := c.Get(ConfigFontScale)
	if !ok {
		return 1
	}
	scale, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 1
	}
	return scale
}

// Len returns the number of items set.
func (c *Configuration) Len() int {
	if c == nil {
		return 0
	}
	return len(c.items)
}

// Items returns a copy of the configuration items.
func (c *Configuration) Items() map[string]string {
	out := make(map[string]string, c.Len())
	if c == nil {
		return out
	}
	for k, v := range c.items {
		out[k] = v
	}
	return out
}

// Keys returns the set keys in sorted order.
func (c *Configuration) Keys() []string {
	keys := make([]string, 0, c.Len())
	if c == nil {
		return keys
	}
	for k := range c.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Merge returns a new snapshot holding newer's items on top of c's. Items that
// newer leaves unset are inherited from c. Either side may be nil.
func (c *Configuration) Merge(newer *Configuration) *Configuration {
	merged := &Configuration{items: make(map[string]string, c.Len()+newer.Len())}
	if c != nil {
		for k, v := range c.items {
			merged.items[k] = v
		}
	}
	if newer != nil {
		for k, v := range newer.items {
			merged.items[k] = v
		}
	}
	return merged
}

// Equal reports whether both snapshots hold the same items.
func (c *Configuration) Equal(other *Configuration) bool {
	if c.Len() != other.Len() {
		return false
	}
	for _, k := range c.Keys() {
		v, ok := other.Get(k)
		if !ok || v != c.items[k] {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the items as a flat JSON object.
func (c *Configuration) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Items())
}

// UnmarshalJSON decodes a flat JSON object of items.
func (c *Configuration) UnmarshalJSON(data []byte) error {
	items := map[string]string{}
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	*c = *NewConfiguration(items)
	return nil
}
