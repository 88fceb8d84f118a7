package browserpool

import (
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
)

// RodLaunchOptions configures the Chromium process Launcher spawns,
// grounded on the teacher's launchBrowser() flag set.
type RodLaunchOptions struct {
	ProxyURL    string
	UserDataDir string
	WindowSize  string
}

// NewRodLauncher returns a Launcher that starts a headless Chromium
// process and connects a *rod.Browser to it. The handle returned to the
// pool is the *rod.Browser; closeFn kills the underlying process.
func NewRodLauncher(opts RodLaunchOptions) Launcher {
	return func() (any, func() error, error) {
		l := launcher.New().
			Headless(true).
			Set("disable-gpu").
			Set("disable-dev-shm-usage").
			Set("no-sandbox").
			Set("disable-setuid-sandbox").
			Set("disable-web-security").
			Set("disable-features", "IsolateOrigins,site-per-process").
			Set("disable-blink-features", "AutomationControlled")

		if opts.ProxyURL != "" {
			l = l.Proxy(opts.ProxyURL)
		}
		if opts.UserDataDir != "" {
			l = l.UserDataDir(opts.UserDataDir)
		}
		if opts.WindowSize != "" {
			l = l.Set("window-size", opts.WindowSize)
		}

		controlURL, err := l.Launch()
		if err != nil {
			return nil, nil, fmt.Errorf("launch chromium: %w", err)
		}

		browser := rod.New().ControlURL(controlURL)
		if err := browser.Connect(); err != nil {
			l.Cleanup()
			return nil, nil, fmt.Errorf("connect browser: %w", err)
		}

		closeFn := func() error {
			err := browser.Close()
			l.Cleanup()
			return err
		}
		return browser, closeFn, nil
	}
}
