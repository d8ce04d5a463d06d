// Command onetouch is the CLI front end for the OneTouch UltraEasy
// driver: it opens a link (real serial device, or the in-memory
// facade for "facade"), runs the requested queries, and prints the
// results as plain text, CSV, or raw hex.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/daniel-thompson/go-ultraeasy/facade"
	"github.com/daniel-thompson/go-ultraeasy/link"
	"github.com/daniel-thompson/go-ultraeasy/meter"
	"github.com/daniel-thompson/go-ultraeasy/serial"
)

var (
	device  = flag.String("device", "/dev/ttyUSB0", "serial device path, or \"facade\" for the built-in simulator")
	dump    = flag.Bool("dump", false, "dump stored records as plain text")
	csv     = flag.Bool("csv", false, "dump stored records as CSV")
	raw     = flag.Bool("raw", false, "dump stored records as raw hex")
	version = flag.Bool("version", false, "print meter firmware version")
	serialN = flag.Bool("serial", false, "print meter serial number")
	rtc     = flag.Bool("rtc", false, "print meter real-time clock")
	verbose = flag.Bool("verbose", false, "enable debug-level tracing")
)

func main() {
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	l, err := openLink(*device, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "onetouch: %v\n", err)
		os.Exit(1)
	}
	defer l.Close()

	m := meter.New(l.Command, meter.WithTracer(link.SlogTracer{Logger: logger}))

	if *version {
		v, err := m.ReadVersion()
		if err != nil {
			fmt.Fprintf(os.Stderr, "onetouch: cannot read version: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Meter version: %s\n", v)
	}

	if *serialN {
		s, err := m.ReadSerial()
		if err != nil {
			fmt.Fprintf(os.Stderr, "onetouch: cannot read serial: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Meter serial: %s\n", s)
	}

	if *rtc {
		t, err := m.ReadRTC()
		if err != nil {
			fmt.Fprintf(os.Stderr, "onetouch: cannot read RTC: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Meter time: %s\n", t.Format("2006-01-02 15:04:05"))
	}

	if *dump || *csv || *raw {
		n, err := m.NumRecords()
		if err != nil {
			fmt.Fprintf(os.Stderr, "onetouch: cannot read record count: %v\n", err)
			os.Exit(1)
		}

		for i := 0; i < n; i++ {
			rec, err := m.Record(i)
			if err != nil {
				fmt.Fprintf(os.Stderr, "onetouch: cannot read record %d: %v\n", i, err)
				os.Exit(1)
			}
			printRecord(rec)
		}
	}
}

func printRecord(rec meter.Record) {
	switch {
	case *raw:
		fmt.Printf("Raw date 0x%08x   Raw reading 0x%08x\n", rec.RawDate, rec.RawReading)
	case *csv:
		d := rec.Date
		fmt.Printf("\"%02d-%02d-%04d\", \"%02d:%02d:%02d\", \"%.1f\"\n",
			d.Day(), int(d.Month()), d.Year(), d.Hour(), d.Minute(), d.Second(), rec.MmolPerLitre)
	default:
		d := rec.Date
		fmt.Printf("%4d-%02d-%02d %02d:%02d:%02d    %4.1f mmol/l\n",
			d.Year(), int(d.Month()), d.Day(), d.Hour(), d.Minute(), d.Second(), rec.MmolPerLitre)
	}
}

func openLink(path string, logger *slog.Logger) (*link.Link, error) {
	tracer := link.SlogTracer{Logger: logger}

	if path == "facade" {
		return link.Open(demoFacade(), link.WithTracer(tracer))
	}

	port, err := serial.Open(path)
	if err != nil {
		return nil, err
	}
	return link.Open(port, link.WithTracer(tracer))
}

// demoFacade returns a facade scripted with the reset/version/serial
// exchanges captured from a real meter, so "-device facade" works out
// of the box without one attached.
func demoFacade() *facade.Facade {
	resetReq := []byte{0x02, 0x06, 0x08, 0x03, 0xc2, 0x62}
	resetAck := []byte{0x02, 0x06, 0x0c, 0x03, 0x06, 0xae}

	versionReq := []byte{0x02, 0x09, 0x00, 0x05, 0x0d, 0x02, 0x03, 0xda, 0x71}
	genericAck := []byte{0x02, 0x06, 0x06, 0x03, 0xcd, 0x41}
	versionReply := []byte{
		0x02, 0x1a, 0x02, 0x05, 0x06, 0x11, 0x50, 0x30, 0x32, 0x2e, 0x30, 0x30,
		0x2e, 0x30, 0x30, 0x32, 0x35, 0x2f, 0x30, 0x35, 0x2f, 0x30, 0x37, 0x03, 0xab, 0x25,
	}

	serialReq := []byte{
		0x02, 0x12, 0x00, 0x05, 0x0b, 0x02, 0x00, 0x00, 0x00, 0x00,
		0x84, 0x6a, 0xe8, 0x73, 0x00, 0x03, 0x9b, 0xea,
	}
	serialReply := []byte{
		0x02, 0x11, 0x02, 0x05, 0x06, 0x43, 0x31, 0x37, 0x36,
		0x53, 0x41, 0x30, 0x4f, 0x30, 0x03, 0x49, 0x43,
	}

	return facade.New().
		Script(resetReq, resetAck).
		Script(versionReq, genericAck, versionReply).
		Script(serialReq, genericAck, serialReply)
}
