package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/jessevdk/go-flags"
	"github.com/robinjoseph08/golib/logger"
	"github.com/wbip/wbip/pkg/epub"
)

func main() {
	log := logger.New()

	var opts struct {
		Manifest bool `short:"m" long:"manifest" description:"Print every manifest item"`
		TOC      bool `short:"t" long:"toc" description:"Print the table of contents"`
	}

	args, err := flags.Parse(&opts)
	if err != nil {
		log.Err(err).Fatal("flags parse error")
	}

	if len(args) != 1 {
		fmt.Println("go run ./cmd/scripts/debug/parse-epub <path/to/file.epub>")
		os.Exit(1)
	}

	info, err := epub.Open(args[0])
	if err != nil {
		log.Err(err).Fatal("epub parse error")
	}

	fmt.Printf("Identifier: %s\nTitle: %s\nCreator(s): %v\nLanguage: %s\nDescription: %s\nModified: %s\nPackage: %s\nMimetype first: %v\nSpine: %v\n",
		info.Identifier, info.Title, info.Creators, info.Language, info.Description, info.Modified, info.PackagePath, info.MimetypeFirst, info.Spine)

	if opts.Manifest {
		fmt.Println("Manifest:")
		for _, item := range info.Manifest {
			fmt.Printf("  %-24s %-28s %-22s %8d %s\n", item.ID, item.Href, item.MediaType, item.Size, item.Properties)
		}
	}

	if opts.TOC {
		fmt.Println("Contents:")
		printTOC(info.TOC, 1)
	}
}

func printTOC(entries []epub.TOCEntry, depth int) {
	for _, e := range entries {
		fmt.Printf("%s%s (%s)\n", strings.Repeat("  ", depth), e.Title, e.Href)
		printTOC(e.Children, depth+1)
	}
}
