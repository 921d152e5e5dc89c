package main

// Compiled-in modules. Each package registers itself with the core module
// registry from its init function.
import (
	_ "github.com/parleyhq/parley/internal/gateway"
	_ "github.com/parleyhq/parley/internal/node"
	_ "github.com/parleyhq/parley/modules/channel/discord"
	_ "github.com/parleyhq/parley/modules/provider/anthropic"
	_ "github.com/parleyhq/parley/modules/provider/openai"
	_ "github.com/parleyhq/parley/modules/provider/openrouter"
	_ "github.com/parleyhq/parley/modules/tool/mcp"
	_ "github.com/parleyhq/parley/modules/transcriber/whisper"
	_ "github.com/parleyhq/parley/modules/usage/sqlite"
)
