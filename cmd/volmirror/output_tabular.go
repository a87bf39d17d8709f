// Copyright 2025 The Volmirror Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/juju/errors"
	"github.com/juju/naturalsort"
)

func tabWriter(writer io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(writer, 0, 1, 2, ' ', 0)
}

// formatStatusTabular returns a tabular summary of mirror
// relationships grouped by replication target, or errors out if the
// value is not a map of mirrorStatus slices.
func formatStatusTabular(writer io.Writer, value interface{}) error {
	statuses, ok := value.(map[string][]mirrorStatus)
	if !ok {
		return errors.Errorf("expected value of type %T, got %T", statuses, value)
	}
	tw := tabWriter(writer)
	print := func(values ...string) {
		fmt.Fprintln(tw, strings.Join(values, "\t"))
	}

	print("TARGET", "SOURCE", "DESTINATION", "STATE", "STATUS", "LAST TRANSFER")

	targets := make([]string, 0, len(statuses))
	for target := range statuses {
		targets = append(targets, target)
	}
	naturalsort.Sort(targets)
	for _, target := range targets {
		for _, s := range statuses[target] {
			last := "-"
			if s.healthy {
				last = humanize.Time(time.Now().Add(-s.lagTime))
			}
			print(target, s.Source, s.Destination, s.State, s.Status, last)
		}
	}
	return tw.Flush()
}

// formatFailoverTabular returns a tabular summary of per-volume
// failover outcomes.
func formatFailoverTabular(writer io.Writer, value interface{}) error {
	result, ok := value.(failoverResult)
	if !ok {
		return errors.Errorf("expected value of type %T, got %T", result, value)
	}
	tw := tabWriter(writer)
	print := func(values ...string) {
		fmt.Fprintln(tw, strings.Join(values, "\t"))
	}

	print("VOLUME", "STATUS")

	ids := make([]string, 0, len(result.Volumes))
	for id := range result.Volumes {
		ids = append(ids, id)
	}
	naturalsort.Sort(ids)
	for _, id := range ids {
		print(id, result.Volumes[id])
	}
	return tw.Flush()
}
