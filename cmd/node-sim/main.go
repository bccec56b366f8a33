// Command node-sim is a reference microcontroller node: it connects to a
// data-server's update port as a producer, emits plausible simulated
// readings for one device on a timer, and, for devices that have one,
// registers a simulated affector it can accept orders for. It sends no
// trouble (error) reports. It exists so the rest of the fabric can be
// exercised without real hardware.
package main

import (
	"context"
	"flag"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sensormesh/fabric/internal/publisher"
	"github.com/sensormesh/fabric/internal/rpc"
	"github.com/sensormesh/fabric/internal/runtimeEnv"
	"github.com/sensormesh/fabric/pkg/log"
	"github.com/sensormesh/fabric/pkg/reading"
	"github.com/sensormesh/fabric/pkg/wire"
)

func main() {
	var serverAddr string
	var deviceFlag int
	var flushInterval time.Duration
	var sampleInterval time.Duration
	flag.StringVar(&serverAddr, "server-addr", "localhost:9100", "data-server update-port address to connect to")
	flag.IntVar(&deviceFlag, "device", int(reading.DeviceSht31), "which device to simulate (0-7, see pkg/reading.DeviceID)")
	flag.DurationVar(&flushInterval, "flush-interval", 5*time.Second, "how often to flush batched readings to the server")
	flag.DurationVar(&sampleInterval, "sample-interval", time.Second, "how often to generate a fresh sample")
	flag.Parse()

	device := reading.DeviceID(deviceFlag)
	if !device.Valid() {
		log.Fatalf("--device %d is out of range", deviceFlag)
	}

	if err := runtimeEnv.LoadEnv("./.env"); err != nil && !os.IsNotExist(err) {
		log.Fatalf("parsing './.env' file failed: %s", err.Error())
	}

	ctx, cancel := context.WithCancel(context.Background())

	client := rpc.NewClient(serverAddr)
	pub := publisher.New(client, flushInterval)

	node := &simulatedNode{device: device, publisher: pub, kinds: reading.KindsForDevice(device)}

	go func() {
		if err := client.Run(ctx, node.handleOrder); err != nil {
			log.Errorf("node-sim: client exited: %v", err)
		}
	}()
	go pub.Run(ctx)
	go node.sampleLoop(ctx, sampleInterval)
	go node.registerLoop(ctx, client)

	log.Infof("node-sim: simulating device %s, connecting to %s", device.Info().Name, serverAddr)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	cancel()
	log.Print("node-sim: shutting down")
}

// simulatedNode generates readings for one device and answers affector
// orders the server forwards to it.
type simulatedNode struct {
	device    reading.DeviceID
	publisher *publisher.Publisher
	kinds     []reading.Kind
}

// sampleLoop enqueues one fresh value per kind this device produces, every
// interval, wandering within each kind's valid range via a simple random
// walk so the simulated data looks like a slowly drifting sensor rather
// than flat noise.
func (n *simulatedNode) sampleLoop(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()

	last := make(map[reading.Kind]float32, len(n.kinds))
	for _, k := range n.kinds {
		lo, hi := k.Range()
		last[k] = lo + (hi-lo)/2
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			for _, k := range n.kinds {
				lo, hi := k.Range()
				span := hi - lo
				step := float32((rand.Float64() - 0.5) * float64(span) * 0.01)
				v := last[k] + step
				v = float32(math.Max(float64(lo), math.Min(float64(hi), float64(v))))
				last[k] = v
				n.publisher.Enqueue(reading.Reading{Kind: k, Value: v})
			}
		}
	}
}

// registerLoop periodically (re-)sends this node's affector registration,
// since a fresh server-side connection starts with none registered and a
// node reconnecting after a drop must re-announce itself.
func (n *simulatedNode) registerLoop(ctx context.Context, client *rpc.Client) {
	controls := simulatedAffectors(n.device)
	if len(controls) == 0 {
		return
	}

	t := time.NewTicker(30 * time.Second)
	defer t.Stop()
	send := func() {
		if err := client.Send(wire.Msg{Kind: wire.KindAffectorRegister, Affected: controls}); err != nil {
			log.Warnf("node-sim: register affectors: %v", err)
		}
	}
	send()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			send()
		}
	}
}

// handleOrder is invoked by the rpc.Client read loop for every message the
// server sends this node, which on the update port is only ever a
// KindAffectorOrder.
func (n *simulatedNode) handleOrder(m wire.Msg) error {
	if m.Kind != wire.KindAffectorOrder {
		log.Warnf("node-sim: unexpected message kind %d from server", m.Kind)
		return nil
	}
	log.Infof("node-sim: received order %s", m.Order)
	return nil
}

// simulatedAffectors names the actuators this reference node pretends to
// expose, one per device that plausibly has one in the real deployment.
func simulatedAffectors(device reading.DeviceID) []reading.Affector {
	switch device {
	case reading.DeviceSps30:
		return []reading.Affector{{Kind: reading.AffectorCleanSensor, Target: device}}
	case reading.DeviceMhz14:
		return []reading.Affector{{Kind: reading.AffectorCalibrateCO2, Target: device, Param: 400}}
	default:
		return nil
	}
}
