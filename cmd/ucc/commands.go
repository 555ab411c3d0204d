package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/portillolaupa-ui/ucc-supervision/internal/orchestrator"
	"github.com/portillolaupa-ui/ucc-supervision/internal/server"
	"github.com/portillolaupa-ui/ucc-supervision/internal/util"
)

func runCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Procesa todos los anexos habilitados, en orden",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAll(cmd, opts)
		},
	}
}

func processCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "process <anexo>",
		Short: "Procesa un solo anexo (por ejemplo anexo4)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signalContext()
			defer stop()

			sum, err := a.orch.RunStep(ctx, orchestrator.TriggerCLI, args[0], nil)
			if err != nil {
				return err
			}
			return reportSummary(cmd.OutOrStdout(), sum)
		},
	}
}

// runAll runs every enabled form; the exit status reflects failed steps only
func runAll(cmd *cobra.Command, opts *rootOptions) error {
	a, err := newApp(opts)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signalContext()
	defer stop()

	sum, err := a.orch.Run(ctx, orchestrator.TriggerCLI, nil)
	if err != nil {
		return err
	}
	return reportSummary(cmd.OutOrStdout(), sum)
}

func serveCmd(opts *rootOptions) *cobra.Command {
	var (
		port  int
		dev   bool
		watch bool
		open  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Inicia la API HTTP (datasets, cargas, ejecuciones, /metrics)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			// config.toml wins over --port
			if port > 0 && !a.info.PortDefined {
				a.cfg.Server.Port = port
			}
			if dev {
				a.cfg.Server.DevMode = true
			}
			if a.cfg.Server.AdminToken == "" {
				a.logger.Warn("admin_token vacío: las cargas y ejecuciones por API están deshabilitadas")
			}

			ctx, stop := signalContext()
			defer stop()

			srv := server.NewServer(server.Deps{
				Config:       a.cfg,
				Forms:        a.forms,
				Orchestrator: a.orch,
				Store:        a.store,
				Metrics:      a.metrics,
				Logger:       a.logger,
			})

			if watch {
				go func() {
					if err := watchLoop(ctx, a); err != nil {
						a.logger.Error("El vigilante se detuvo", "error", err)
					}
				}()
			}

			addr := fmt.Sprintf(":%d", a.cfg.Server.Port)
			url := fmt.Sprintf("http://localhost:%d", a.cfg.Server.Port)
			if open {
				go func() {
					if err := util.OpenBrowserWithFallback(url); err != nil {
						a.logger.Warn("No se pudo abrir el navegador", "url", url, "error", err)
					}
				}()
			}

			return srv.Run(ctx, addr)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "puerto HTTP (config.toml tiene prioridad)")
	cmd.Flags().BoolVar(&dev, "dev", false, "modo desarrollo")
	cmd.Flags().BoolVar(&watch, "watch", false, "reprocesar al detectar cambios en data/raw")
	cmd.Flags().BoolVar(&open, "open", false, "abrir el navegador al iniciar")
	return cmd
}

func watchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Vigila data/raw y reprocesa el anexo de cada archivo nuevo o modificado",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signalContext()
			defer stop()
			return watchLoop(ctx, a)
		},
	}
}

func formsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "forms",
		Short: "Lista los anexos habilitados y su configuración",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTAG\tTIPO\tFORMATO\tPATRÓN\tTÍTULO")
			for _, f := range a.forms {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					f.ID, f.Tag, f.Kind, f.Source.Format, f.Source.Pattern, f.Title)
			}
			return tw.Flush()
		},
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// reportSummary prints the run summary and returns errStepsFailed when a step failed
func reportSummary(w io.Writer, sum *orchestrator.Summary) error {
	printSummary(w, sum)
	if sum.ExitCode() != 0 {
		return errStepsFailed
	}
	return nil
}

func printSummary(w io.Writer, sum *orchestrator.Summary) {
	fmt.Fprintln(w, "==========================================")
	fmt.Fprintf(w, "  Resumen: %d/%d pasos completados\n", sum.OK(), sum.Total())
	fmt.Fprintln(w, "==========================================")

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ANEXO\tESTADO\tFICHAS\tERRORES\tFILAS\tDATASET\tDURACIÓN\tDETALLE")
	for _, st := range sum.Steps {
		files, failed, rows, total := "-", "-", "-", "-"
		duration := st.CompletedAt.Sub(st.StartedAt).Round(10 * time.Millisecond).String()
		if r := st.Report; r != nil {
			files = fmt.Sprintf("%d/%d", r.FilesOK, r.FilesTotal)
			failed = fmt.Sprint(r.FilesFailed)
			rows = fmt.Sprint(r.RowsWritten)
			total = fmt.Sprint(r.DatasetRows)
		}
		detail := st.Error
		if detail == "" && st.Report != nil && len(st.Report.Warnings) > 0 {
			detail = strings.Join(st.Report.Warnings, "; ")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			st.Name, strings.ToUpper(string(st.State)), files, failed, rows, total, duration, detail)
	}
	_ = tw.Flush()
}
