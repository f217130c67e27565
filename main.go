package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/f4hrenh9it/go-gtmetrix/gtmetrix"
)

var version string

func main() {
	apiKey := flag.String("api_key", "", "gtmetrix api key")
	apiUrl := flag.String("api_url", gtmetrix.DefaultBaseURL, "gtmetrix api url")
	pageUrl := flag.String("url", "", "page url to test")
	pdfOut := flag.String("report_pdf", "", "file to save the pdf report to, optional")
	waitTimeout := flag.Duration("wait_timeout", 30*time.Minute, "how long to wait for the test to finish")
	logLevel := flag.String("log_level", "", "logging level")
	flag.Parse()
	if *apiKey == "" {
		log.Fatal("provide your gtmetrix api key, ex. --api_key e8ddc55d93eb0e8281b255ea236dcc4f")
	}
	if *pageUrl == "" {
		log.Fatal("provide the page url to test, ex. --url http://example.com")
	}
	fmt.Printf("ver: %s\n", version)
	c := gtmetrix.New(*apiUrl, *apiKey, nil, *logLevel)
	test, err := c.StartTest(*pageUrl, nil)
	if err != nil {
		log.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), *waitTimeout)
	defer cancel()
	state, err := test.WaitForCompletion(ctx)
	if err != nil {
		log.Fatal(err)
	}
	if state == gtmetrix.StateError {
		log.Fatalf("test %s failed: %v", test.ID(), test.Attributes()["error"])
	}
	report, err := test.GetReport()
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("grade: %v\n", report.Attributes()["gtmetrix_grade"])
	if *pdfOut != "" {
		if err := report.GetResourceFile("report_pdf", *pdfOut); err != nil {
			log.Fatal(err)
		}
	}
}
