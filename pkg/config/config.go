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

package config

import (
	"net"
	"os"
	"path/filepath"

	"sigs.k8s.io/yaml"
)

// Device describes one motherboard on the network.
type Device struct {
	Name string `json:"name"`
	IP   string `json:"ip"`
	// MasterClockRate is the tick rate of the fixed-rate clock in Hz.
	MasterClockRate float64 `json:"masterClockRate,omitempty"`
	// MimoMode is one of master, slave, auto. A slave takes time from
	// the MIMO cable and rejects host time sets.
	MimoMode string `json:"mimoMode,omitempty"`
	// UpsPerSec is the periodic TX flow-control update rate. 0 disables.
	UpsPerSec float64 `json:"upsPerSec"`
	// UpsPerFifo is the TX flow-control granularity in ring fractions.
	// 0 disables.
	UpsPerFifo float64 `json:"upsPerFifo"`
}

type TransportConfig struct {
	RecvFrameSize int `json:"recvFrameSize,omitempty"`
	SendFrameSize int `json:"sendFrameSize,omitempty"`
	NumRecvFrames int `json:"numRecvFrames,omitempty"`
	NumSendFrames int `json:"numSendFrames,omitempty"`
}

type Config struct {
	IP        string           `json:"ip,omitempty"`
	LogLevel  string           `json:"logLevel,omitempty"`
	DBPath    string           `json:"dbPath,omitempty"`
	Transport *TransportConfig `json:"transport,omitempty"`
	Devices   []*Device        `json:"devices"`
	filepath  string
}

func (c *Config) Persist(overwrite bool) error {
	if _, err := os.Stat(c.filepath); err == nil && !overwrite {
		return ErrConfigFileExists{Path: c.filepath}
	}

	data, err := yaml.Marshal(&c)
	if err != nil {
		return err
	}

	dir := filepath.Dir(c.filepath)
	err = os.MkdirAll(dir, 0755)
	if err != nil {
		return err
	}

	return os.WriteFile(c.filepath, data, 0644)
}

// Load reads the config file if it exists. A missing file leaves the
// defaults in place.
func (c *Config) Load() error {
	data, err := os.ReadFile(c.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, c)
}

func (c *Config) GetDeviceByName(name string) (*Device, error) {
	for _, d := range c.Devices {
		if d.Name == name {
			return d, nil
		}
	}
	return nil, ErrDeviceNotFound{What: name}
}

func (c *Config) GetDeviceByIP(ip net.IP) (*Device, error) {
	for _, d := range c.Devices {
		if net.ParseIP(d.IP).Equal(ip) {
			return d, nil
		}
	}
	return nil, ErrDeviceNotFound{What: ip.String()}
}

func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = ""
	}
	return filepath.Join(home, ConfigDir, ConfigFile)
}

func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = ""
	}
	return filepath.Join(home, ConfigDir, DBFile)
}

func NewDefaultConfig() *Config {
	return &Config{
		IP:       DefaultIP,
		LogLevel: DefaultLogLevel,
		DBPath:   DefaultDBPath(),
		Transport: &TransportConfig{
			RecvFrameSize: DefaultRecvFrameSize,
			SendFrameSize: DefaultSendFrameSize,
			NumRecvFrames: DefaultNumRecvFrames,
			NumSendFrames: DefaultNumSendFrames,
		},
		Devices: []*Device{
			{
				Name:            "usrp2-0",
				IP:              "192.168.10.2",
				MasterClockRate: DefaultMasterClockRate,
				MimoMode:        MimoModeAuto,
				UpsPerSec:       DefaultUpsPerSec,
				UpsPerFifo:      DefaultUpsPerFifo,
			},
		},
		filepath: DefaultConfigPath(),
	}
}
