package caster

import (
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gnsscaster/ntripcaster/pkg/acceptor"
	"github.com/gnsscaster/ntripcaster/pkg/authstore"
	"github.com/gnsscaster/ntripcaster/pkg/config"
	"github.com/gnsscaster/ntripcaster/pkg/dispatcher"
	"github.com/gnsscaster/ntripcaster/pkg/forwarder"
	"github.com/gnsscaster/ntripcaster/pkg/registry"
	"github.com/gnsscaster/ntripcaster/pkg/rtcm"
	"github.com/gnsscaster/ntripcaster/pkg/sourcetable"
)

// Caster owns one listening socket and every collaborator wired to
// it: the registry of live mounts, the fan-out forwarder, the
// protocol dispatcher, and the bounded accept loop in front of them.
type Caster struct {
	cfg   *config.Config
	creds *authstore.Store
	log   *logrus.Logger

	reg *registry.Registry
	fwd *forwarder.Forwarder
	acc *acceptor.Acceptor

	ln net.Listener
}

// NewCaster wires a Caster from a loaded configuration and credential
// store. It does not open the listening socket; call ListenAndServe
// for that.
func NewCaster(cfg *config.Config, creds *authstore.Store, log *logrus.Logger) *Caster {
	c := &Caster{cfg: cfg, creds: creds, log: log}

	fwd := forwarder.New(forwarder.Config{
		RingCapacity:       cfg.DataForwarding.RingBufferSize,
		SendTimeout:        time.Duration(cfg.DataForwarding.DataSendTimeoutSec) * time.Second,
		SlowConsumerWindow: time.Minute,
	})
	c.fwd = fwd

	reg := registry.New(
		registry.Defaults{Network: cfg.App.Name, Format: "RTCM 3.3", Compression: "N"},
		c.onMountAdmitted,
		fwd.DropMount,
	)
	c.reg = reg

	disp := dispatcher.New(dispatcher.Config{
		MaxConnectionsPerUser: cfg.NTRIP.MaxConnectionsPerUser,
		HeaderReadTimeout:     time.Duration(cfg.TCP.SocketTimeoutSec) * time.Second,
		WriteTimeout:          time.Duration(cfg.DataForwarding.DataSendTimeoutSec) * time.Second,
	}, creds, reg, fwd, c.buildTable, log)

	c.acc = acceptor.New(acceptor.Config{
		QueueSize:      cfg.Network.MaxConnections,
		Workers:        cfg.Network.MaxConnections,
		GlobalMaxConns: cfg.Network.MaxConnections,
	}, disp.Handle, reg, log)

	return c
}

// onMountAdmitted starts a fixed-duration RTCM inspection over a
// duplicate of the producer's byte stream, applying the result to the
// registry once it completes. Grounded on the registry/forwarder
// split: the registry never imports rtcm or forwarder directly, so
// this glue lives in the composition root instead.
func (c *Caster) onMountAdmitted(mount string) {
	c.fwd.CreateMount(mount)

	duration := time.Duration(c.cfg.RTCM.ParseDurationSec) * time.Second
	if duration <= 0 {
		duration = rtcm.DefaultStrFixDuration
	}

	ins := rtcm.NewInspector(mount, rtcm.StrFix, 0, "N", rtcm.Callbacks{})
	handle, err := c.fwd.RegisterSubscriberPipe(mount, inspectorWriter{ins})
	if err != nil {
		c.log.WithError(err).WithField("mount", mount).Debug("registering inspection pipe")
		return
	}

	go func() {
		defer c.fwd.Unsubscribe(handle)
		deadline := time.NewTimer(duration)
		defer deadline.Stop()
		<-deadline.C
		ins.Stop()
		if err := c.reg.ApplyInspection(mount, ins.Result()); err != nil {
			c.log.WithError(err).WithField("mount", mount).Debug("applying inspection result")
		}
	}()
}

// inspectorWriter adapts rtcm.Inspector.Feed to the io.Writer a
// Forwarder subscriber pipe expects.
type inspectorWriter struct{ ins *rtcm.Inspector }

func (w inspectorWriter) Write(p []byte) (int, error) {
	w.ins.Feed(p)
	return len(p), nil
}

// buildTable assembles the current sourcetable: a CAS; line from the
// caster's own config, a NET; line from the App identity fields, and
// the registry's live STR; rows.
func (c *Caster) buildTable() sourcetable.Table {
	return sourcetable.Table{
		Caster: sourcetable.CasterEntry{
			Host:       c.cfg.Network.Host,
			Port:       c.cfg.NTRIP.Port,
			Identifier: nonEmpty(c.cfg.App.Name, "NTRIP Caster"),
			Operator:   c.cfg.App.Author,
			Country:    c.cfg.Caster.Country,
			Latitude:   c.cfg.Caster.Latitude,
			Longitude:  c.cfg.Caster.Longitude,
			Misc:       c.cfg.App.Contact,
		},
		Network: sourcetable.NetworkEntry{
			Identifier:     nonEmpty(c.cfg.App.Name, "DEFAULT"),
			Operator:       c.cfg.App.Author,
			Authentication: "B",
			NetworkInfoURL: c.cfg.App.Website,
		},
		RawStreamRows: c.reg.StrRows(),
	}
}

func nonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// ListenAndServe opens the listening socket and runs the accept loop
// until Shutdown is called.
func (c *Caster) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", c.cfg.Network.Host, c.cfg.NTRIP.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("caster: listen %s: %w", addr, err)
	}
	c.ln = ln
	return c.acc.Serve(ln)
}

// Shutdown closes the listener and drains in-flight connections per
// the acceptor's graceful-shutdown policy.
func (c *Caster) Shutdown() {
	if c.ln != nil {
		c.ln.Close()
	}
	c.acc.Shutdown()
}
