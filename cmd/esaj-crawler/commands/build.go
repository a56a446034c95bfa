package commands

import (
	"context"
	"fmt"
	"maps"

	"esaj-crawler/internal/components/chrono"
	"esaj-crawler/internal/components/telemetry"
	"esaj-crawler/internal/config"
	"esaj-crawler/internal/crawl"
	"esaj-crawler/internal/download"
	"esaj-crawler/internal/extract"
	"esaj-crawler/internal/portal"
	"esaj-crawler/internal/render"
	"esaj-crawler/internal/resolve"
	"esaj-crawler/internal/search"
	"esaj-crawler/internal/store"
)

func userAgent(cfg config.Config) string {
	if cfg.Render.UserAgent != "" {
		return cfg.Render.UserAgent
	}
	return download.DefaultHeaders["User-Agent"]
}

func sessionFactory(cfg config.Config) render.Factory {
	if cfg.Render.Engine == "static" {
		return render.NewStaticFactory(func() (render.PageLoader, error) {
			loader, err := render.NewCollyLoader(render.CollyOptions{
				UserAgent: userAgent(cfg),
				Timeout:   cfg.Render.NavigationTimeout.Std(),
			})
			if err != nil {
				return nil, err
			}
			return loader, nil
		})
	}
	return render.NewRodFactory(render.RodOptions{
		Bin:               cfg.Render.Bin,
		Headless:          cfg.Render.Headless,
		NavigationTimeout: cfg.Render.NavigationTimeout.Std(),
	})
}

func documentStore(ctx context.Context, cfg config.Config, tel telemetry.API) (store.DocumentStore, error) {
	switch cfg.Output.Documents {
	case "sql":
		return store.NewSQLStore(cfg.Output.Database, tel), nil
	case "s3":
		client, err := store.NewS3Client(ctx, store.S3Options{
			Endpoint:  cfg.Output.S3.Endpoint,
			Region:    cfg.Output.S3.Region,
			AccessKey: cfg.Output.S3.AccessKey,
			SecretKey: cfg.Output.S3.SecretKey,
		})
		if err != nil {
			return nil, fmt.Errorf("create s3 client: %w", err)
		}
		return store.NewObjectStore(client, cfg.Output.S3.Bucket, cfg.Output.S3.Prefix), nil
	}
	return store.NewFilesystem(cfg.Output.DocumentsDir), nil
}

type pipeline struct {
	portal    portal.Portal
	paginator search.Paginator
	stage     *crawl.DocumentStage
	documents store.DocumentStore
}

// newPipeline wires the portal, the extractor and, when withDocuments is set, the
// document resolution and download stage.
func newPipeline(ctx context.Context, cfg config.Config, tel telemetry.API, withDocuments bool) (pipeline, error) {
	p, err := portal.New(portal.Options{
		BaseUrl:   cfg.Portal.BaseUrl,
		PageParam: cfg.Portal.PageParam,
	})
	if err != nil {
		return pipeline{}, err
	}

	extractor := extract.NewExtractor(extract.Options{
		Selectors:  p.Selectors,
		ViewerWait: cfg.Timing.ViewerWait.Std(),
	}, tel)
	out := pipeline{
		portal: p,
		paginator: search.NewPaginator(p, extractor, search.Options{
			Settle:     cfg.Timing.Settle.Std(),
			PageSettle: cfg.Timing.PageSettle.Std(),
		}, tel),
	}
	if !withDocuments {
		return out, nil
	}

	out.documents, err = documentStore(ctx, cfg, tel)
	if err != nil {
		return pipeline{}, err
	}

	headers := maps.Clone(download.DefaultHeaders)
	headers["User-Agent"] = userAgent(cfg)
	bridge, err := download.NewBridge(out.documents, out.documents, chrono.StandardImpl{}, download.Options{
		Timeout:           cfg.Download.Timeout.Std(),
		Headers:           headers,
		RequestsPerSecond: cfg.Download.RequestsPerSecond,
		DumpDir:           cfg.Download.DumpDir,
	}, tel)
	if err != nil {
		return pipeline{}, fmt.Errorf("create download bridge: %w", err)
	}

	resolver := resolve.NewResolver(p, extractor, resolve.Options{
		Settle: cfg.Timing.Settle.Std(),
	}, tel)
	out.stage = crawl.NewDocumentStage(resolver, bridge)
	return out, nil
}

func (p pipeline) documentsOutput() string {
	if p.documents == nil {
		return ""
	}
	return p.documents.Location()
}
