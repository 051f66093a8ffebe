/*
 Licensed under the Apache License, Version 2.0 (the "License");
 you may not use this file except in compliance with the License.
 You may obtain a copy of the License at

     https://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

package device

import (
	"sync"

	"github.com/sdrlab/go-usrp2/pkg/device/ifc"
)

// MemRegIface fulfills the register peek/poke contract in memory.
// It stands in when no control-channel client is wired and backs the
// test harness.
type MemRegIface struct {
	mu   sync.Mutex
	regs map[uint32]uint32
}

var _ ifc.RegIface = &MemRegIface{}

func NewMemRegIface() *MemRegIface {
	return &MemRegIface{regs: make(map[uint32]uint32)}
}

func (i *MemRegIface) Peek32(addr uint32) (uint32, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.regs[addr], nil
}

func (i *MemRegIface) Poke32(addr, value uint32) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.regs[addr] = value
	return nil
}
