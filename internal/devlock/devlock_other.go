// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

//go:build !unix

package devlock

// Lock is a no-op on platforms without flock; Windows already opens COM
// ports exclusively.
type Lock struct{}

// Acquire always succeeds.
func Acquire(string) (*Lock, error) {
	return &Lock{}, nil
}

// Release does nothing.
func (*Lock) Release() error {
	return nil
}
