// command lys-device is a demonstration device program: it receives a
// blink count and a delay type from the host, blinks virtual LEDs and
// reports the product back as its result.
package main

import (
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/op/go-logging"

	"github.com/inductivekickback/lys"
	"github.com/inductivekickback/lys/internal/logutil"
)

var (
	serialDev = flag.String("device", "", "serial device")
	loopback  = flag.Bool("loopback", false, "run against an in-process host")
	numLEDs   = flag.Int("leds", 4, "number of virtual LEDs")
)

var log *logging.Logger

func main() {
	flag.Parse()
	log = logutil.Setup("lys-device", logging.INFO)
	if err := run(); err != nil {
		log.Fatalf("%v", err)
	}
}

func run() error {
	var rw io.ReadWriter
	var hostDone chan struct{}
	if *loopback {
		dev, pc := lys.NewLoopback()
		rw = dev
		hostDone = make(chan struct{})
		go func() {
			hostSide(pc)
			close(hostDone)
		}()
	} else {
		port, err := lys.Open(*serialDev)
		if err != nil {
			return err
		}
		defer port.Close()
		rw = port
	}

	e := lys.New(rw)
	e.Init()

	var (
		numLoops  uint32
		delayType uint8
	)
	if err := e.ParamsReceive(&numLoops, &delayType); err != nil {
		return abort(e, err)
	}
	log.Infof("running: %d loops, delay type %d", numLoops, delayType)

	leds := make([]bool, *numLEDs)
	for j := uint32(0); j < numLoops; j++ {
		for i := range leds {
			leds[i] = !leds[i]
			log.Debugf("led %d: %v", i, leds[i])
			time.Sleep(blinkDelay(delayType))
		}
		if err := e.LogSend(fmt.Sprintf("loop %d/%d done", j+1, numLoops)); err != nil {
			return abort(e, err)
		}
	}

	result := numLoops * uint32(delayType)
	if err := e.ResultsSend(lys.U32(result)); err != nil {
		return abort(e, err)
	}
	log.Noticef("finished, result %d", result)

	if hostDone != nil {
		<-hostDone
	}
	return nil
}

func blinkDelay(delayType uint8) time.Duration {
	switch delayType {
	case 0:
		return 100 * time.Millisecond
	case 1:
		return 500 * time.Millisecond
	case 2:
		return time.Second
	}
	return 0
}

// abort notifies the host of a fatal error before giving up.
func abort(e *lys.Engine, err error) error {
	log.Errorf("session failed: %v", err)
	if sendErr := e.ErrorSend(); sendErr != nil {
		log.Errorf("error notification failed: %v", sendErr)
	}
	return err
}

// hostSide drives the device from within the same process in
// -loopback mode.
func hostSide(rw io.ReadWriter) {
	h := lys.NewHost(rw)
	results, err := h.Run(lys.U32(3), lys.U8(1))
	for _, line := range h.Logs {
		log.Infof("host: device ▶ %s", line)
	}
	if err != nil {
		log.Errorf("host: %v", err)
		return
	}
	for i, r := range results {
		log.Infof("host: result %d: %d", i, r.Uint32())
	}
}
