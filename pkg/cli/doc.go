/*
Package cli provides the helpers shared by the relay command's subcommands.

Output Formatting:

Subcommands print either an aligned text table or JSON:

	out := cli.NewFormatter(cli.FormatText)
	table := &cli.Table{Headers: []string{"ID", "AGE"}}
	table.Append("req-1", "2m3s")
	if err := out.Write(os.Stdout, table, raw); err != nil {
		return err
	}

Text and CSV render the table; JSON encodes raw, the value the table was
built from.

Drain Progress:

DrainProgress renders how far a relay has drained its in-flight requests:

	progress := cli.NewDrainProgress(os.Stderr)
	progress.Start(active)
	progress.Update(remaining)
	progress.Finish()

Signal Handling:

SignalContext is cancelled on the first SIGINT or SIGTERM. A second signal
calls the force function, which normally exits the process:

	ctx, stop := cli.SignalContext(context.Background(), func() { os.Exit(1) })
	defer stop()

Exit Codes:

ExitCode maps a command error to the process exit status. Configuration
errors exit with 2, everything else with 1.
*/
package cli
