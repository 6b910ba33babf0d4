package demo

import "github.com/pumped-fn/playerx"

// HelloWorldPackage logs a greeting once the logger is registered
func HelloWorldPackage() *playerx.Package {
	return &playerx.Package{
		Name:         "hello-world",
		Dependencies: []string{LoggerKey.Name()},
		Install: func(ctx *playerx.ExecutionCtx) error {
			logger, err := playerx.Get(ctx.Registry(), LoggerKey)
			if err != nil {
				return err
			}
			logger.Warn("Hello World!")
			return nil
		},
	}
}
