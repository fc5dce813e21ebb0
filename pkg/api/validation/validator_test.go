// Playwatch
// Copyright (c) 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of Playwatch.
//
// Playwatch is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Playwatch is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Playwatch.  If not, see <http://www.gnu.org/licenses/>.

package validation

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type overrideBody struct {
	Value string `json:"value" validate:"required,oneof=game app"`
}

func TestDecodeAndValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		wantErr error
		name    string
		body    string
		wantMsg string
	}{
		{name: "game", body: `{"value":"game"}`},
		{name: "app", body: `{"value":"app"}`},
		{name: "empty body", body: "  ", wantErr: ErrMissingBody},
		{name: "bad json", body: `{"value":`, wantErr: ErrInvalidBody},
		{name: "missing value", body: `{}`, wantMsg: "value is required"},
		{name: "wrong value", body: `{"value":"maybe"}`, wantMsg: "value must be one of: game app"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var dest overrideBody
			err := DecodeAndValidate([]byte(tt.body), &dest)
			switch {
			case tt.wantErr != nil:
				require.ErrorIs(t, err, tt.wantErr)
			case tt.wantMsg != "":
				var verr *Error
				require.True(t, errors.As(err, &verr))
				assert.Equal(t, tt.wantMsg, verr.Error())
			default:
				require.NoError(t, err)
			}
		})
	}
}

func TestPackage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		pkg   string
		valid bool
	}{
		{pkg: "com.tencent.ig", valid: true},
		{pkg: "steam_app_570", valid: true},
		{pkg: "dota2", valid: true},
		{pkg: "", valid: false},
		{pkg: ".hidden", valid: false},
		{pkg: "com.x/../etc", valid: false},
		{pkg: "has space", valid: false},
		{pkg: strings.Repeat("a", 256), valid: false},
	}
	for _, tt := range tests {
		t.Run(tt.pkg, func(t *testing.T) {
			t.Parallel()
			err := DefaultValidator.Package(tt.pkg)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
