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

package srv

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"github.com/sdrlab/go-usrp2/pkg/config"
	"github.com/sdrlab/go-usrp2/pkg/device"
	"github.com/sdrlab/go-usrp2/pkg/log"
)

const (
	ApiPort = 8002

	shutdownTimeout = 2 * time.Second
)

// RegHex is the JSON form of a register access.
type RegHex struct {
	Addr  string `json:"addr"`
	Value string `json:"value"`
}

// MboardStatus ...
type MboardStatus struct {
	Name       string `json:"name"`
	State      string `json:"state"`
	MimoMaster bool   `json:"mimoMaster"`
}

// Status is the stream status report.
type Status struct {
	Channels        int            `json:"channels"`
	Overflows       uint64         `json:"overflows"`
	Underflows      uint64         `json:"underflows"`
	AlignedTuples   uint64         `json:"alignedTuples"`
	AlignmentDrops  uint64         `json:"alignmentDrops"`
	MalformedFrames uint64         `json:"malformedFrames"`
	Mboards         []MboardStatus `json:"mboards"`
}

// ApiServer exposes stream status and control over HTTP.
type ApiServer struct {
	context.Context
	*config.Config
	*mux.Router
	device *device.Device
}

func NewApiServer(ctx context.Context, cfg *config.Config, dev *device.Device) *ApiServer {
	log.Info("Initializing API server with address: %s port: %d", cfg.IP, ApiPort)
	return &ApiServer{
		Context: ctx,
		Config:  cfg,
		device:  dev,
	}
}

func (s *ApiServer) Run() error {
	s.configureRouter()
	httpServer := &http.Server{
		Handler: handlers.LoggingHandler(log.Writer(), s.Router),
		Addr:    fmt.Sprintf("%s:%d", s.Config.IP, ApiPort),
	}

	group, ctx := errgroup.WithContext(s.Context)
	group.Go(func() error {
		return httpServer.ListenAndServe()
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
		return ctx.Err()
	})
	return group.Wait()
}

func (s *ApiServer) configureRouter() {
	s.Router = mux.NewRouter()
	subRouter := s.Router.PathPrefix("/api").Subrouter()
	subRouter.HandleFunc("/status", s.handleStatus()).Methods("GET")
	subRouter.HandleFunc("/stream/start/{channel}", s.handleStream(device.StreamModeStartContinuous)).Methods("GET")
	subRouter.HandleFunc("/stream/stop/{channel}", s.handleStream(device.StreamModeStopContinuous)).Methods("GET")
	subRouter.HandleFunc("/reg/r/{device}/{addr}", s.handleRegRead()).Methods("GET")
	subRouter.HandleFunc("/reg/w/{device}", s.handleRegWrite()).Methods("POST")
}

func (s *ApiServer) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := s.device.Stats()
		status := Status{
			Channels:        s.device.NumChannels(),
			Overflows:       stats.Overflows,
			Underflows:      stats.Underflows,
			AlignedTuples:   stats.AlignedTuples,
			AlignmentDrops:  stats.AlignmentDrops,
			MalformedFrames: stats.MalformedFrames,
		}
		for _, m := range s.device.Mboards() {
			status.Mboards = append(status.Mboards, MboardStatus{
				Name:       m.Name(),
				State:      m.State().String(),
				MimoMaster: m.MimoMaster(),
			})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(&status)
	}
}

func (s *ApiServer) handleStream(mode device.StreamMode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		channel, err := strconv.Atoi(vars["channel"])
		if err != nil || channel < 0 || channel >= s.device.NumChannels() {
			http.Error(w, ErrBadChannel{What: vars["channel"]}.Error(), http.StatusBadRequest)
			return
		}
		cmd := device.StreamCmd{Mode: mode, StreamNow: true}
		if err := s.device.IssueStreamCmd(cmd, channel); err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
		}
	}
}

func (s *ApiServer) mboardByName(name string) *device.Mboard {
	for _, m := range s.device.Mboards() {
		if m.Name() == name {
			return m
		}
	}
	return nil
}

func (s *ApiServer) handleRegRead() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		m := s.mboardByName(vars["device"])
		if m == nil {
			http.Error(w, config.ErrDeviceNotFound{What: vars["device"]}.Error(), http.StatusNotFound)
			return
		}
		addr, err := strconv.ParseUint(vars["addr"], 16, 32)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		value, err := m.RegRead(uint32(addr))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(&RegHex{
			Addr:  fmt.Sprintf("%x", addr),
			Value: fmt.Sprintf("%x", value),
		})
	}
}

func (s *ApiServer) handleRegWrite() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		m := s.mboardByName(vars["device"])
		if m == nil {
			http.Error(w, config.ErrDeviceNotFound{What: vars["device"]}.Error(), http.StatusNotFound)
			return
		}
		reg := &RegHex{}
		if err := json.NewDecoder(r.Body).Decode(reg); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		addr, err := strconv.ParseUint(reg.Addr, 16, 32)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		value, err := strconv.ParseUint(reg.Value, 16, 32)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := m.RegWrite(uint32(addr), uint32(value)); err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
		}
	}
}
