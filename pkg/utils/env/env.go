/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package env

import (
	"os"
	"strconv"
	"time"
)

func withDefault[T any](key string, def T, parse func(string) (T, error)) T {
	val, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	parsed, err := parse(val)
	if err != nil {
		return def
	}
	return parsed
}

// WithDefaultString returns the value of the supplied environment
// variable or, if not present, the supplied default value.
func WithDefaultString(key string, def string) string {
	val, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	return val
}

// WithDefaultInt returns the int value of the supplied environment
// variable or, if not present or unparseable, the supplied default.
func WithDefaultInt(key string, def int) int {
	return withDefault(key, def, strconv.Atoi)
}

// WithDefaultBool returns the boolean value of the supplied environment
// variable or, if not present or unparseable, the supplied default.
func WithDefaultBool(key string, def bool) bool {
	return withDefault(key, def, strconv.ParseBool)
}

// WithDefaultDuration returns the duration value of the supplied
// environment variable or, if not present or unparseable, the supplied
// default.
func WithDefaultDuration(key string, def time.Duration) time.Duration {
	return withDefault(key, def, time.ParseDuration)
}
