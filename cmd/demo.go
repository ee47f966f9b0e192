// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cmd

import (
	"fmt"

	"code.hybscloud.com/captp"
)

// newDemo returns the bootstrap object served by "captp serve".
//
//	echo(args...)   returns its arguments
//	counter(start?) returns a new Counter
//	fail(message)   rejects with message
func newDemo() *captp.Far {
	return captp.NewFar("Demo", map[string]captp.Method{
		"echo": func(args ...any) (any, error) {
			return args, nil
		},
		"counter": func(args ...any) (any, error) {
			start, err := optInt(args, 0)
			if err != nil {
				return nil, err
			}
			return newCounter(start), nil
		},
		"fail": func(args ...any) (any, error) {
			return nil, &captp.RemoteError{Name: "DemoError", Message: fmt.Sprint(args...)}
		},
	})
}

func newCounter(n int64) *captp.Far {
	return captp.NewFar("Counter", map[string]captp.Method{
		"incr": func(args ...any) (any, error) {
			by, err := optInt(args, 1)
			if err != nil {
				return nil, err
			}
			n += by
			return n, nil
		},
		"get": func(...any) (any, error) {
			return n, nil
		},
	})
}

func optInt(args []any, def int64) (int64, error) {
	if len(args) == 0 {
		return def, nil
	}
	switch v := args[0].(type) {
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	}
	return 0, fmt.Errorf("want an integer argument, got %T", args[0])
}
