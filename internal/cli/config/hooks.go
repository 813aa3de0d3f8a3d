package config

import (
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

// decodeHooks convert the string forms a config file or flag may use into
// the typed config fields.
func decodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		commaListHook(),
		mapstructure.StringToTimeDurationHookFunc(),
	)
}

// commaListHook decodes "xy, xz" into a slice. Elements are trimmed and an
// empty string is an empty list.
func commaListHook() mapstructure.DecodeHookFuncType {
	return func(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
		if f.Kind() != reflect.String || t.Kind() != reflect.Slice {
			return data, nil
		}
		s := strings.TrimSpace(data.(string))
		if s == "" {
			return []string{}, nil
		}
		parts := strings.Split(s, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, nil
	}
}
