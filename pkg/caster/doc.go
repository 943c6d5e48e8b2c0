// Package caster is the composition root: it wires the acceptor,
// dispatcher, mount registry, fan-out forwarder and credential store
// into one runnable server, and owns the STR_FIX inspection that
// enriches a mount's sourcetable row right after it comes up.
//
// Example usage:
//
//	creds := authstore.New()
//	creds.PutMount("EXAMPLE", "secret", "")
//	c := caster.NewCaster(cfg, creds, logger)
//	if err := c.ListenAndServe(); err != nil {
//	    log.Fatal(err)
//	}
package caster
