// sms-test sends the test SMS using the current farmgate configuration.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/teslashibe/farmgate/internal/config"
	"github.com/teslashibe/farmgate/internal/log"
	"github.com/teslashibe/farmgate/pkg/notify"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (overrides FARMGATE_CONFIG)")
	to := flag.String("to", "", "Recipient phone (overrides farmer_phone)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration error: %v\n", err)
		os.Exit(1)
	}
	log.Init(cfg.LogLevel)

	smsCfg := cfg.SMS()
	if *to != "" {
		smsCfg.To = *to
	}
	sms := notify.NewSMS(smsCfg)

	fmt.Println("📱 farmgate SMS test")
	fmt.Printf("   Transport: %s\n", sms.Transport())
	fmt.Printf("   To:        %s\n", sms.Recipient())
	if smsCfg.Mock() {
		fmt.Printf("   Mock log:  %s\n", smsCfg.MockLog)
	}
	fmt.Println()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := sms.Notify(ctx, notify.KindTest, notify.Episode{At: time.Now()}); err != nil {
		fmt.Printf("❌ Failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("✅ Test SMS sent")
}
