package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"rempos/internal/sim"
)

// simulate streams synthetic phone telemetry to a running bridge until ctx
// is done or count samples were acknowledged.
func simulate(ctx context.Context, w io.Writer, url string, rate float64, count int) error {
	url = strings.TrimSpace(url)
	if !strings.HasPrefix(url, "ws://") && !strings.HasPrefix(url, "wss://") {
		url = "ws://" + url
	}

	p, err := sim.NewPhone(sim.PhoneConfig{
		URL:    url,
		Rate:   rate,
		Count:  count,
		Motion: sim.Motion{CenterLat: 47.3769, CenterLon: 8.5417},
	})
	if err != nil {
		return err
	}

	st, err := p.Run(ctx)
	fmt.Fprintf(w, "welcome: %s\n", st.Welcome)
	fmt.Fprintf(w, "sent: %d\n", st.Sent)
	fmt.Fprintf(w, "acked: %d\n", st.Acked)
	return err
}
