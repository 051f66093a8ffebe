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
	"github.com/spf13/cobra"

	"github.com/sdrlab/go-usrp2/pkg/command"
	"github.com/sdrlab/go-usrp2/pkg/config"
)

func NewStartCommand() *cobra.Command {
	var channel int
	cfg := config.NewDefaultConfig()
	cfg.Load()
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start continuous streaming on a channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			return command.NewApiClient(cfg).StreamStart(channel)
		},
	}
	cmd.Flags().IntVar(&channel, ChannelOptionName, 0, "Channel index")
	return cmd
}

func NewStopCommand() *cobra.Command {
	var channel int
	cfg := config.NewDefaultConfig()
	cfg.Load()
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop streaming on a channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			return command.NewApiClient(cfg).StreamStop(channel)
		},
	}
	cmd.Flags().IntVar(&channel, ChannelOptionName, 0, "Channel index")
	return cmd
}

func NewStatusCommand() *cobra.Command {
	cfg := config.NewDefaultConfig()
	cfg.Load()
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the stream status report",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := command.NewApiClient(cfg).Status()
			if err != nil {
				return err
			}
			cmd.Println(status)
			return nil
		},
	}
	return cmd
}
