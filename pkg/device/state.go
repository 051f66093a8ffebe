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
	"encoding/binary"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/sdrlab/go-usrp2/pkg/config"
	"github.com/sdrlab/go-usrp2/pkg/log"
)

const (
	BucketNamePrefix = "reg_"
)

// RegState is the shadow copy of poked device registers. Every write
// through a motherboard interface is mirrored here so CLI and API
// reads do not need to touch the wire.
type RegState struct {
	DB *bbolt.DB
}

func NewRegState(cfg *config.Config) (*RegState, error) {
	db, err := bbolt.Open(cfg.DBPath, 0600, nil)
	if err != nil {
		return nil, err
	}
	if err = db.Update(func(tx *bbolt.Tx) error {
		for _, device := range cfg.Devices {
			_, err = tx.CreateBucketIfNotExists([]byte(bucketName(device.Name)))
			if err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &RegState{DB: db}, nil
}

func uint32ToByte(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func bucketName(deviceName string) string {
	return fmt.Sprintf("%s%s", BucketNamePrefix, deviceName)
}

// Close ...
func (s *RegState) Close() {
	s.DB.Close()
}

// SetReg ...
func (s *RegState) SetReg(addr, value uint32, deviceName string) error {
	log.Debug("Setting shadow register: Addr: %x Value: %x", addr, value)
	return s.DB.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName(deviceName)))
		if b == nil {
			return fmt.Errorf("Bucket not found: %s", bucketName(deviceName))
		}
		return b.Put(uint32ToByte(addr), uint32ToByte(value))
	})
}

// GetReg ...
func (s *RegState) GetReg(addr uint32, deviceName string) (uint32, error) {
	var value uint32
	if err := s.DB.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName(deviceName)))
		if b == nil {
			return fmt.Errorf("Bucket not found: %s", bucketName(deviceName))
		}
		valueBytes := b.Get(uint32ToByte(addr))
		if valueBytes == nil {
			return fmt.Errorf("Key not found: %d", addr)
		}
		value = binary.BigEndian.Uint32(valueBytes)
		return nil
	}); err != nil {
		return 0, err
	}
	return value, nil
}

// GetRegAll returns the shadow values of all mapped registers that
// have been written for a device.
func (s *RegState) GetRegAll(deviceName string) (map[uint32]uint32, error) {
	regs := make(map[uint32]uint32)
	if err := s.DB.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName(deviceName)))
		if b == nil {
			return fmt.Errorf("Bucket not found: %s", bucketName(deviceName))
		}
		for _, addr := range RegMap {
			valueBytes := b.Get(uint32ToByte(addr))
			if valueBytes == nil {
				continue
			}
			regs[addr] = binary.BigEndian.Uint32(valueBytes)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return regs, nil
}
