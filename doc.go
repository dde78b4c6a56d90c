/*
 sshgateplus is the real-time gateway behind a web SSH dashboard.

 Each browser tab holds one persistent web socket to the gateway.
 Over that socket a client can open a single interactive shell
 against a stored server record and run any number of one-shot
 SFTP operations (list, download, upload), each on its own
 short-lived connection.

 Stored private keys are kept encrypted at rest and are only
 decrypted in memory for the duration of a single connection
 attempt.

 The gateway is managed via code: construct a Gateway with
 MakeNewGateway, hand it a ServerStore and a Vault, and start
 its web server.
*/
package sshgateplus
