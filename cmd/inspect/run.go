package main

import (
	"code-lab/infrastructure/grpc/server"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

func newRunCmd(defaultAddr string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Submit a source file to the execution service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			language, _ := cmd.Flags().GetString("language")
			sessionID, _ := cmd.Flags().GetString("session")
			timeout, _ := cmd.Flags().GetDuration("timeout")

			source, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			output, ok, err := submit(ctx, server.NewExecutionClient(conn), sessionID, language, filepath.Base(args[0]), string(source))
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), output)
			if !ok {
				return fmt.Errorf("program failed")
			}
			return nil
		},
	}
	cmd.Flags().String("addr", defaultAddr, "execution service address")
	cmd.Flags().StringP("language", "l", "", "language of the file")
	cmd.Flags().StringP("session", "s", "", "session owning the run")
	cmd.Flags().Duration("timeout", time.Minute, "request timeout")
	_ = cmd.MarkFlagRequired("language")
	return cmd
}

func submit(ctx context.Context, client *server.ExecutionClient,
	sessionID, language, filename, code string) (string, bool, error) {
	request, err := structpb.NewStruct(map[string]any{
		"session":  sessionID,
		"language": language,
		"filename": filename,
		"code":     code,
	})
	if err != nil {
		return "", false, err
	}
	response, err := client.Run(ctx, request)
	if err != nil {
		return "", false, err
	}
	fields := response.GetFields()
	return fields["output"].GetStringValue(), fields["ok"].GetBoolValue(), nil
}
