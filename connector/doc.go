// Package connector talks to the ASHRAE occupant behavior database.
//
// A Connector lists the behaviors and studies the database holds, probes
// its health, and downloads data archives. Downloads go through the
// server's export job workflow: the job is submitted, its status is polled
// once per second until the archive is ready, and the archive is then
// streamed in chunks to a local file or a blob bucket.
//
//	conn, err := connector.New()
//	if err != nil {
//		return err
//	}
//
//	err = conn.DownloadExport(ctx, "data.zip",
//		[]any{"Appliance_Usage", "Occupancy_Measurement"},
//		[]any{22, 11, 2},
//		connector.WithProgressBar(os.Stderr),
//	)
//
// Polling has no limit of its own. Give ctx a deadline to bound it.
package connector
