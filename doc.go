// Package aicore is a local-first conversational agent runtime.
//
// It turns one chat message into a planned, tool-using, checkpointed
// turn: an HTTP front door admits the request, the orchestrator builds
// context from the conversation log and a full-text semantic index,
// elicits a strict-JSON plan from a locally hosted chat-completions
// endpoint, executes ready tool batches through a canonicalizing
// router, and synthesizes a final answer. Every phase transition is
// persisted as an atomically written plan checkpoint so interrupted
// turns can resume.
//
// # Quick Start
//
//	llm := lmstudio.New("http://localhost:1234", "local-model")
//	convLog := memory.New("data/memory")
//	index := sqlite.New("data/rag/knowledge.sqlite")
//	_ = index.Init(ctx)
//	checkpoints := checkpoint.New(".runtime/plans")
//
//	router := aicore.NewRouter()
//	router.Register("ping", ping.New())
//	router.Register("browser", browser.New())
//
//	asm := aicore.NewAssembler(convLog, index)
//	orch := aicore.NewOrchestrator(convLog, asm, router, llm, checkpoints)
//
//	res := orch.HandleChat(ctx, "summarize https://example.com", "default", "")
//
// # Core Interfaces
//
//   - Provider: chat RPC to an LLM endpoint (provider/lmstudio)
//   - ToolProvider: one capability, dispatched by the Router
//   - ConversationLog: append-only per-session JSONL (memory)
//   - Index: full-text chunk store (store/sqlite, store/postgres)
//   - CheckpointStore: atomic per-plan state files (checkpoint)
//
// The internal/gateway package serves the HTTP surface; cmd/aicore
// wires everything together.
package aicore
