// Package server is a minimal NTRIP producer: it dials a caster over
// raw TCP, performs either the classic SOURCE handshake or an
// NTRIP/2.0 POST handshake, and streams a DataSource's bytes into the
// connection until stopped. It exists to drive the dispatcher,
// registry and forwarder end to end in integration tests and as a
// runnable fixture for manual testing against a live caster, not as a
// production producer client.
//
// Example usage:
//
//	logger := logrus.New()
//	srv := server.NewServer("localhost", "2101", "", "basestation-secret", "BASE1", logger)
//	srv.SetDataSource(server.NewFileDataSource("corrections.rtcm3", 4096, 100*time.Millisecond))
//	if err := srv.Start(); err != nil {
//	    log.Fatal(err)
//	}
//	defer srv.Stop()
package server
