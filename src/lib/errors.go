/*
# Copyright 2022-present Ralf Kundel
#
# Licensed under the Apache License, Version 2.0 (the "License");
# you may not use this file except in compliance with the License.
# You may obtain a copy of the License at
#
#    http://www.apache.org/licenses/LICENSE-2.0
#
# Unless required by applicable law or agreed to in writing, software
# distributed under the License is distributed on an "AS IS" BASIS,
# WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
# See the License for the specific language governing permissions and
# limitations under the License.
*/

package lib

import "errors"

var (
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrInvalidRule   = errors.New("invalid flow rule")
	ErrUnknownSwitch = errors.New("unknown switch")
	ErrUnknownPort   = errors.New("unknown port")
	ErrNotConnected  = errors.New("switch not connected")
	ErrBadTransition = errors.New("illegal switch state transition")
)
