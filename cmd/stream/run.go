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

package stream

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sdrlab/go-usrp2/pkg/config"
	"github.com/sdrlab/go-usrp2/pkg/device"
	"github.com/sdrlab/go-usrp2/pkg/srv"
	"github.com/sdrlab/go-usrp2/pkg/transport"
)

// NewRunCommand creates the command that brings the streaming engine
// up and serves the control API until interrupted.
func NewRunCommand() *cobra.Command {
	cfg := config.NewDefaultConfig()
	cfg.Load()
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Bring up all configured motherboards and serve the API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			regState, err := device.NewRegState(cfg)
			if err != nil {
				return err
			}
			defer regState.Close()

			var mboards []*device.Mboard
			for i, devCfg := range cfg.Devices {
				var dsps []transport.FrameTransport
				for _, port := range []int{config.Dsp0Port, config.Dsp1Port} {
					xport, err := transport.NewUDPTransport(
						devCfg.IP, port,
						cfg.Transport.RecvFrameSize, cfg.Transport.SendFrameSize,
						cfg.Transport.NumRecvFrames, cfg.Transport.NumSendFrames,
					)
					if err != nil {
						return err
					}
					dsps = append(dsps, xport)
				}
				errXport, err := transport.NewUDPTransport(
					devCfg.IP, config.Err0Port,
					cfg.Transport.RecvFrameSize, cfg.Transport.SendFrameSize,
					cfg.Transport.NumRecvFrames, cfg.Transport.NumSendFrames,
				)
				if err != nil {
					return err
				}

				// The register control channel is served by an
				// external client; substitute it here when one is
				// available.
				mboard, err := device.NewMboard(i, devCfg, device.NewMemRegIface(), regState, dsps, errXport)
				if err != nil {
					return err
				}
				mboards = append(mboards, mboard)
			}

			dev := device.NewDevice(cfg, mboards)
			if err := dev.InitIO(); err != nil {
				return err
			}
			defer dev.Close()

			api := srv.NewApiServer(ctx, cfg, dev)
			return api.Run()
		},
	}
	return cmd
}
