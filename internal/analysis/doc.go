// Package analysis implements the analysis stage: it selects a prompt
// profile, routes the request to a model, renders the prompt over the
// repository digest and turns the model's JSON reply into a task.Analysis.
//
// Profiles ship embedded in profiles.yaml. A prompts file named by
// llm.prompts_file may add profiles or replace built-in ones; Catalog.Watch
// reloads it when it changes on disk.
package analysis
