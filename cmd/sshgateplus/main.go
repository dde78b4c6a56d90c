package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/bja2142/sshgateplus"
)

func main() {
	listenAddr := flag.String("listen", "0.0.0.0:8080", "gateway web server listen address")
	serverFile := flag.String("servers", "servers.json", "JSON file holding server records")
	auditFile := flag.String("audit", "audit.log", "audit log file; empty disables auditing")
	htmlFolder := flag.String("html", "./html", "static folder for the dashboard; empty disables")
	secret := flag.String("secret", "", "vault secret; defaults to the ENCRYPTION_KEY environment variable")
	encryptKey := flag.String("encrypt-key", "", "encrypt the private key at this path for use in a server record, then exit")

	flag.Parse()

	if *secret == "" {
		*secret = os.Getenv("ENCRYPTION_KEY")
	}
	if *secret == "" {
		log.Fatal("no vault secret: pass -secret or set ENCRYPTION_KEY")
	}
	vault := sshgateplus.MakeNewVault(*secret)

	if *encryptKey != "" {
		keyData, err := os.ReadFile(*encryptKey)
		if err != nil {
			log.Fatal(err)
		}
		ciphertext, err := vault.Encrypt(keyData)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(ciphertext)
		return
	}

	store := sshgateplus.MakeNewFileServerStore(*serverFile)
	gateway := sshgateplus.MakeNewGateway(store, vault)
	gateway.ListenAddr = *listenAddr
	gateway.HTMLFolder = *htmlFolder
	if *auditFile != "" {
		gateway.Audit = sshgateplus.MakeNewFileAuditRecorder(*auditFile)
	}

	log.Println("sshgateplus has started.")
	if err := gateway.ListenAndServe(); err != nil {
		log.Fatal(err)
	}
}
