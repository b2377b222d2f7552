// Copyright 2021 Converter Systems LLC. All rights reserved.

package main

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"log"
	"math/big"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/awcullen/uasc/ua"
	"github.com/awcullen/uasc/uasc"
	"github.com/pkg/errors"
)

func main() {

	// create directory with certificate and key, if not found.
	if err := ensurePKI(); err != nil {
		log.Println("Error creating PKI.")
		return
	}

	localCertificate, err := uasc.LoadCertificateFromFile("./pki/server.crt")
	if err != nil {
		log.Println(errors.Wrap(err, "Error loading certificate"))
		return
	}
	localPrivateKey, err := uasc.LoadPrivateKeyFromFile("./pki/server.key")
	if err != nil {
		log.Println(errors.Wrap(err, "Error loading private key"))
		return
	}

	ep, err := uasc.NewEndpoint(
		"opc.tcp://localhost:46010",
		localCertificate,
		localPrivateKey,
		[]uasc.EndpointDescription{
			{SecurityPolicyURI: ua.SecurityPolicyURINone, SecurityMode: ua.MessageSecurityModeNone},
			{SecurityPolicyURI: ua.SecurityPolicyURIBasic128Rsa15, SecurityMode: ua.MessageSecurityModeSign},
			{SecurityPolicyURI: ua.SecurityPolicyURIBasic128Rsa15, SecurityMode: ua.MessageSecurityModeSignAndEncrypt},
			{SecurityPolicyURI: ua.SecurityPolicyURIBasic256, SecurityMode: ua.MessageSecurityModeSign},
			{SecurityPolicyURI: ua.SecurityPolicyURIBasic256, SecurityMode: ua.MessageSecurityModeSignAndEncrypt},
		},
		uasc.WithObserver(loggingObserver{}),
	)
	if err != nil {
		log.Println(errors.Wrap(err, "Error creating endpoint"))
		return
	}

	go func() {
		log.Println("Press Ctrl-C to exit...")
		waitForSignal()

		log.Println("Stopping server...")
		ep.Close()
	}()

	if err := ep.ListenAndServe(); err != nil {
		log.Println(errors.Wrap(err, "Error serving endpoint"))
	}
}

// loggingObserver answers every service request with a fault and logs the
// traffic of the channel.
type loggingObserver struct{}

func (loggingObserver) OnMessage(ch *uasc.Channel, req ua.ServiceRequest, requestID uint32) {
	log.Printf("channel %d request %d: %T", ch.ChannelID(), requestID, req)
	fault := &ua.ServiceFault{ResponseHeader: ua.ResponseHeader{ServiceResult: ua.BadServiceUnsupported}}
	if err := ch.SendResponse(fault, requestID); err != nil {
		log.Printf("channel %d send response: %s", ch.ChannelID(), err)
	}
}

func (loggingObserver) OnTokenIssued(ch *uasc.Channel, token ua.ChannelSecurityToken, renewed bool) {
	if renewed {
		log.Printf("channel %d renewed token %d, lifetime %d ms", ch.ChannelID(), token.TokenID, token.RevisedLifetime)
		return
	}
	log.Printf("channel %d issued token %d, lifetime %d ms", ch.ChannelID(), token.TokenID, token.RevisedLifetime)
}

func (loggingObserver) OnTransactionDone(ch *uasc.Channel, stats uasc.TransactionStats) {
	log.Printf("channel %d request %d done. reception %s, processing %s, emission %s, read %d, written %d",
		ch.ChannelID(), stats.RequestID, stats.Reception, stats.Processing, stats.Emission, stats.BytesRead, stats.BytesWritten)
}

func (loggingObserver) OnAbort(ch *uasc.Channel, reason ua.StatusCode, message string) {
	log.Printf("channel %d aborted. %s %s", ch.ChannelID(), reason.Error(), message)
}

func waitForSignal() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
}

func createNewCertificate(appName, certFile, keyFile string) error {

	// create a keypair.
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return ua.BadCertificateInvalid
	}

	// create a certificate.
	host, _ := os.Hostname()
	applicationURI, _ := url.Parse(fmt.Sprintf("urn:%s:%s", host, appName))
	serialNumber, _ := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	subjectKeyHash := sha1.New()
	subjectKeyHash.Write(key.PublicKey.N.Bytes())
	subjectKeyId := subjectKeyHash.Sum(nil)

	template := x509.Certificate{
		SerialNumber:          serialNumber,
		Subject:               pkix.Name{CommonName: appName},
		SubjectKeyId:          subjectKeyId,
		AuthorityKeyId:        subjectKeyId,
		NotBefore:             time.Now(),
		NotAfter:              time.Now().AddDate(1, 0, 0),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageContentCommitment | x509.KeyUsageKeyEncipherment | x509.KeyUsageDataEncipherment | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{host},
		URIs:                  []*url.URL{applicationURI},
	}

	rawcrt, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return ua.BadCertificateInvalid
	}

	if f, err := os.Create(certFile); err == nil {
		block := &pem.Block{Type: "CERTIFICATE", Bytes: rawcrt}
		if err := pem.Encode(f, block); err != nil {
			f.Close()
			return err
		}
		f.Close()
	} else {
		return err
	}

	if f, err := os.Create(keyFile); err == nil {
		block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}
		if err := pem.Encode(f, block); err != nil {
			f.Close()
			return err
		}
		f.Close()
	} else {
		return err
	}

	return nil
}

func ensurePKI() error {

	// check if ./pki already exists
	if _, err := os.Stat("./pki"); !os.IsNotExist(err) {
		return nil
	}

	// make a pki directory, if not exist
	if err := os.MkdirAll("./pki", os.ModeDir|0755); err != nil {
		return err
	}

	// create a server cert in ./pki/server.crt
	if err := createNewCertificate("uascserver", "./pki/server.crt", "./pki/server.key"); err != nil {
		return err
	}

	return nil
}
