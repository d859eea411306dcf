package browser

import (
	"context"
	"errors"
	"fmt"

	"github.com/chromedp/chromedp"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
)

func remoteAllocator(endpoint string) allocator {
	return func(ctx context.Context) (context.Context, func(), error) {
		allocCtx, cancel := chromedp.NewRemoteAllocator(ctx, endpoint, chromedp.NoModifyURL)
		return allocCtx, cancel, nil
	}
}

// localAllocator runs an installed Chrome via chromedp. Without an explicit
// path it asks rod's launcher to find one on the host.
func localAllocator(cfg Config) allocator {
	return func(ctx context.Context) (context.Context, func(), error) {
		path := cfg.ExecPath
		if path == "" {
			found, ok := launcher.LookPath()
			if !ok {
				return nil, nil, errors.New("no local chrome installation found")
			}
			path = found
		}
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.ExecPath(path),
			chromedp.Flag("headless", "new"),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("hide-scrollbars", true),
			chromedp.Flag("enable-automation", false),
			chromedp.Flag("disable-blink-features", "AutomationControlled"),
			chromedp.WindowSize(1920, 1080),
		)
		if cfg.NoSandbox {
			opts = append(opts, chromedp.NoSandbox)
		}
		allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)
		return allocCtx, cancel, nil
	}
}

// managedAllocator lets rod download (or reuse) a pinned Chromium build,
// launches it, and attaches chromedp to its DevTools endpoint.
func managedAllocator(cfg Config) allocator {
	return func(ctx context.Context) (context.Context, func(), error) {
		b := launcher.NewBrowser()
		if cfg.DownloadDir != "" {
			b.RootDir = cfg.DownloadDir
		}
		bin, err := b.Get()
		if err != nil {
			return nil, nil, fmt.Errorf("resolve managed chromium: %w", err)
		}

		l := launcher.New().
			Bin(bin).
			Headless(true).
			NoSandbox(cfg.NoSandbox)
		l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
		l.Delete(flags.Flag("enable-automation"))
		l.Set(flags.Flag("disable-dev-shm-usage"))
		l.Set(flags.Flag("hide-scrollbars"))
		l.Set(flags.Flag("window-size"), "1920,1080")

		controlURL, err := l.Launch()
		if err != nil {
			return nil, nil, fmt.Errorf("launch managed chromium: %w", err)
		}
		allocCtx, cancel := chromedp.NewRemoteAllocator(ctx, controlURL, chromedp.NoModifyURL)
		return allocCtx, func() {
			cancel()
			l.Kill()
			l.Cleanup()
		}, nil
	}
}
