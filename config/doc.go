// Package config resolves the command's configuration.
//
// # Overview
//
// Configuration resolves in three layers, later layers winning: compiled
// defaults (Default), a YAML file (Load with a path), and TRADELINE_*
// environment variables (kelseyhightower/envconfig). Money values travel
// as decimal strings and parse through shopspring/decimal, so a configured
// commission of 0.03 is exactly 0.03.
//
// The section accessors (Environment, RandomWalk, FillModel) convert the
// file-level settings into the domain structs the topology consumes;
// Validate runs all of them, so a config that validates always assembles.
package config
