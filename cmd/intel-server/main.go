// Package main Document Intelligence API Server
//
//	@title			Document Intelligence API
//	@version		1.0
//	@description	API for document upload, staged processing, analysis and hybrid search
//
//	@contact.name	API Support
//
//	@license.name	Apache 2.0
//	@license.url	http://www.apache.org/licenses/LICENSE-2.0.html
//
//	@host		localhost:8080
//	@BasePath	/
package main

import (
	"log"

	_ "doc-intel/docs" // swagger docs registration
	"doc-intel/internal/server"
)

func main() {
	log.Println("Starting document intelligence server...")
	srv, err := server.NewServer()
	if err != nil {
		log.Fatalf("Failed to initialize server: %v", err)
	}
	if err := srv.ListenAndServe(); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
