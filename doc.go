// Package ytorbit adds comments from a YouTube channel to an Orbit
// workspace as activities.
//
// Overview
//
// A run walks the channel's uploads playlist, reads every comment thread
// (replies included), keeps the comments posted within the last N hours,
// maps each one to an Orbit activity and posts them one by one. Orbit
// deduplicates on the activity key, so rerunning over an overlapping window
// is safe.
//
//   - GetComments: Fetch a channel's recent comments
//   - PrepareComments: Map comments to Orbit activity records
//   - AddActivities: Submit records to Orbit
//   - Run: All of the above, with a deadline, metrics and a summary
//
// Quick Start
//
//	cfg, err := config.Load("")
//	if err != nil {
//		log.Fatal(err)
//	}
//	client, err := ytorbit.New(ctx, cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	res, err := client.Run(ctx, ytorbit.RunOptions{Hours: 24})
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Printf("Added %d activities\n", res.Stats.Added)
//
// Configuration
//
// config.Load reads settings from, highest priority first:
//
//  1. Environment variables
//  2. Config file (ytorbit.yaml or ~/.config/ytorbit/ytorbit.yaml)
//  3. Default values
//
// Credentials come from ORBIT_WORKSPACE_ID, ORBIT_API_KEY, YOUTUBE_API_KEY
// and YOUTUBE_CHANNEL_ID. Other settings use the YTORBIT_ prefix, for
// example YTORBIT_HOURS, YTORBIT_TIMEOUT, YTORBIT_WORKERS and
// YTORBIT_METRICS_PUSH_URL.
//
// Error Handling
//
// Errors match the sentinels ErrInvalidInput, ErrNotFound and ErrUpstream
// with errors.Is. Failed upstream calls carry an *UpstreamError and
// rejected submissions a *SubmitError:
//
//	var subErr *ytorbit.SubmitError
//	if errors.As(err, &subErr) {
//		fmt.Printf("%s: %s\n", subErr.Key, subErr.Kind)
//	}
//
// Advanced Usage
//
// For more control, use the sub-packages directly:
//
//   - youtube: Uploads, comment threads and the recency filter
//   - orbit: Activity mapping and submission
//   - http: Rate limited, retrying HTTP client shared by both
//   - config: Configuration management
package ytorbit
