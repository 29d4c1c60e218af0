package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/legamerdc/ftbuf/client"
	"github.com/legamerdc/ftbuf/protocol"
)

func newDumpCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "dump FILE",
		Short: "Save the resident header, samples and events to a compressed archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.Dial("tcp", v.GetString("addr"))
			if err != nil {
				return err
			}
			defer c.Close()

			f, err := os.Create(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			aw := protocol.NewArchiveWriter(f, protocol.NativeOrder)
			st, err := c.Dump(aw)
			if err != nil {
				_ = aw.Close()
				return err
			}
			if err := aw.Close(); err != nil {
				return err
			}
			fi, err := f.Stat()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "dumped %s samples and %s events (%s)\n",
				humanize.Comma(int64(st.Samples)), humanize.Comma(int64(st.Events)), humanize.IBytes(uint64(fi.Size())))
			return nil
		},
	}
}

func newReplayCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "replay FILE",
		Short: "Send an archive to a buffer server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			ar, err := protocol.NewArchiveReader(f, 0)
			if err != nil {
				return err
			}
			defer ar.Close()

			c, err := client.Dial("tcp", v.GetString("addr"))
			if err != nil {
				return err
			}
			defer c.Close()

			st, err := c.Replay(ar)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "replayed %s samples and %s events\n",
				humanize.Comma(int64(st.Samples)), humanize.Comma(int64(st.Events)))
			return nil
		},
	}
}
