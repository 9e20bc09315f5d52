// Package extractors builds the entity backend selected by configuration.
//
// Two backends exist: rules, a deterministic regular expression and
// dictionary scanner, and llm, which prompts a language model for a JSON
// list of entities. Each names itself "<kind>:<variant>" so mentions from
// different backends can live side by side and be purged independently.
package extractors
