package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/padbridge/padbridge/internal/serialport"
)

// Ports lists serial ports the serve command could use.
type Ports struct {
	All  bool `help:"List every port instead of only discovery candidates"`
	JSON bool `help:"Print the list as JSON"`
}

// Run is called by Kong when the ports command is executed.
func (p *Ports) Run(logger *slog.Logger) error {
	ports, err := serialport.List()
	if err != nil {
		return err
	}
	logger.Debug("serial ports listed", "count", len(ports))
	return p.print(os.Stdout, ports)
}

func (p *Ports) print(w io.Writer, ports []serialport.PortInfo) error {
	if !p.All {
		ports = serialport.Candidates(ports)
	}
	if p.JSON {
		if ports == nil {
			ports = []serialport.PortInfo{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(ports)
	}
	if len(ports) == 0 {
		_, err := fmt.Fprintln(w, "no serial ports found")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PORT\tUSB\tVID:PID\tSERIAL\tPRODUCT")
	for _, pi := range ports {
		usb, id := "no", "-"
		if pi.IsUSB {
			usb, id = "yes", pi.VID+":"+pi.PID
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", pi.Name, usb, id, orDash(pi.SerialNumber), orDash(pi.Product))
	}
	return tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
