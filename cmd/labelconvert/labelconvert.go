package main

import (
	"context"
	"fmt"
	"os"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/logs"

	"github.com/labelforge/labelforge/annotate"
	"github.com/labelforge/labelforge/annotate/ontology"
	"github.com/labelforge/labelforge/client"
	"github.com/labelforge/labelforge/serialize/labelv1"
	"github.com/labelforge/labelforge/serialize/ndjson"
)

func check(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func main() {
	parser := argparse.NewParser("labelconvert", "Convert label exports between the verbose and compact formats")
	input := parser.String("i", "input", &argparse.Options{Help: "Input export file (optionally gzipped)", Required: true})
	output := parser.String("o", "output", &argparse.Options{Help: "Output file", Required: true})
	from := parser.Selector("f", "from", []string{"verbose", "compact"}, &argparse.Options{Help: "Input format", Required: false, Default: "verbose"})
	ontologyPath := parser.String("t", "ontology", &argparse.Options{Help: "Ontology JSON file; assigns schema ids and validates compact output", Required: false, Default: ""})
	token := parser.String("", "token", &argparse.Options{Help: "Authorization header value for fetching remote frame tables and masks", Required: false, Default: ""})
	compress := parser.Flag("z", "gzip", &argparse.Options{Help: "Gzip the output", Required: false})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, _ := logs.NewLog()
	ctx := context.Background()

	fetcher := client.NewHTTPFetcher()
	if *token != "" {
		fetcher.Headers = map[string]string{"Authorization": *token}
	}
	converter := &labelv1.Converter{Logger: logger, Fetcher: fetcher}

	var schema *ontology.Ontology
	if *ontologyPath != "" {
		raw, err := os.ReadFile(*ontologyPath)
		check(err)
		schema, err = ontology.FromJSON(raw)
		check(err)
	}

	in, err := os.Open(*input)
	check(err)
	defer in.Close()
	out, err := os.Create(*output)
	check(err)
	defer out.Close()

	switch *from {
	case "verbose":
		records, err := labelv1.Read(in)
		check(err)
		logger.Infof("Read %v records from %v", len(records), *input)
		labels, err := converter.Deserialize(ctx, records)
		check(err)
		assignSchemaIDs(schema, labels)
		compact, err := ndjson.Serialize(ctx, logger, labels)
		check(err)
		if schema != nil {
			check(ndjson.Validate(compact, schema))
		}
		check(ndjson.Write(out, compact, *compress))
		logger.Infof("Wrote %v annotations to %v", len(compact), *output)
	case "compact":
		records, err := ndjson.Read(in)
		check(err)
		logger.Infof("Read %v annotations from %v", len(records), *input)
		if schema != nil {
			check(ndjson.Validate(records, schema))
		}
		labels, err := ndjson.Deserialize(records)
		check(err)
		assignSchemaIDs(schema, labels)
		verbose, err := converter.Serialize(ctx, labels)
		check(err)
		check(labelv1.Write(out, verbose, *compress))
		logger.Infof("Wrote %v records to %v", len(verbose), *output)
	}
}

func assignSchemaIDs(schema *ontology.Ontology, labels []*annotate.Label) {
	if schema == nil {
		return
	}
	for _, label := range labels {
		check(schema.AssignFeatureSchemaIDs(label))
	}
}
