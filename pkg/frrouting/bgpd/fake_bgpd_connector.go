// Copyright 2025 The peering-session-controller Authors
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

package bgpd

import "context"

// FakeBGPdConnector is for testing the frrouting driver.
type FakeBGPdConnector struct {
	Neighbors VRFNeighbors
	Err       error
	// Calls counts the calls of ShowBGPNeighbors.
	Calls int
}

// ShowBGPNeighbors implements bgpd.BGPdConnector
func (c *FakeBGPdConnector) ShowBGPNeighbors(context.Context) (VRFNeighbors, error) {
	c.Calls++
	if c.Err != nil {
		return nil, c.Err
	}
	return c.Neighbors, nil
}

func NewFakeBGPdConnector(neighbors VRFNeighbors) *FakeBGPdConnector {
	return &FakeBGPdConnector{Neighbors: neighbors}
}
