package config

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// toTree round-trips cfg through JSON so paths follow the json tags.
func toTree(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// GetByPath retrieves a config value by dot-notation path (e.g. "whatsapp.apiVersion").
func GetByPath(cfg *Config, path string) (any, error) {
	m, err := toTree(cfg)
	if err != nil {
		return nil, err
	}
	var current any = m
	for _, key := range strings.Split(path, ".") {
		switch v := current.(type) {
		case map[string]any:
			val, ok := v[key]
			if !ok {
				return nil, fmt.Errorf("key not found: %s", path)
			}
			current = val
		case []any:
			idx, err := strconv.Atoi(key)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil, fmt.Errorf("invalid array index: %s", key)
			}
			current = v[idx]
		default:
			return nil, fmt.Errorf("cannot traverse into %T at %s", current, key)
		}
	}
	return current, nil
}

// SetByPath sets a config value by dot-notation path. Only existing keys can
// be set, and the result must still pass Validate; cfg is left untouched
// on error.
func SetByPath(cfg *Config, path string, value any) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("empty path")
	}
	m, err := toTree(cfg)
	if err != nil {
		return err
	}

	parts := strings.Split(path, ".")
	parent := m
	for _, p := range parts[:len(parts)-1] {
		child, ok := parent[p].(map[string]any)
		if !ok {
			return fmt.Errorf("key not found: %s", path)
		}
		parent = child
	}
	last := parts[len(parts)-1]
	old, ok := parent[last]
	if !ok {
		return fmt.Errorf("key not found: %s", path)
	}
	parent[last] = coerce(old, value)

	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	next := Defaults()
	if err := json.Unmarshal(data, next); err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	if err := Validate(next); err != nil {
		return err
	}
	*cfg = *next
	return nil
}

// coerce converts a string from the command line to the type of the value it replaces.
func coerce(old, v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	switch old.(type) {
	case bool:
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
	case float64:
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	case []any, nil:
		// Only lists are null in the tree.
		items := []any{}
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				items = append(items, part)
			}
		}
		return items
	}
	return s
}

// Sanitize returns a copy of the config with secrets masked.
func Sanitize(cfg *Config) *Config {
	c := *cfg
	c.Notify.Telegram.ChatIDs = append(FlexStringList(nil), cfg.Notify.Telegram.ChatIDs...)

	for _, p := range []*string{
		&c.WhatsApp.AppSecret,
		&c.WhatsApp.AccessToken,
		&c.WhatsApp.VerifyToken,
		&c.Notify.Telegram.Token,
	} {
		*p = maskString(*p)
	}
	if c.Server.Admin.PasswordHash != "" {
		c.Server.Admin.PasswordHash = "***"
	}
	return &c
}

// maskString shows the first and last 4 chars of long secrets. Parameter
// store references are not secret and are kept readable.
func maskString(s string) string {
	switch {
	case s == "", strings.HasPrefix(s, "ssm:"):
		return s
	case len(s) <= 8:
		return "***"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// ListPaths returns every leaf path with its current value, sorted by path.
func ListPaths(cfg *Config) []PathValue {
	m, err := toTree(cfg)
	if err != nil {
		return nil
	}
	var out []PathValue
	flatten("", m, &out)
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

type PathValue struct {
	Path  string
	Value any
}

func flatten(prefix string, m map[string]any, out *[]PathValue) {
	for k, v := range m {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		if child, ok := v.(map[string]any); ok {
			flatten(path, child, out)
			continue
		}
		*out = append(*out, PathValue{Path: path, Value: v})
	}
}
