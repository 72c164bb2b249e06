// Package transport carries KNXnet/IP routing frames over IPv4 multicast.
//
// A Multicast endpoint joins the routing group (224.0.23.12:3671 by
// default), hands every received datagram to a callback and sends frames
// produced by the device core. It implements knxip.Sender.
//
// The receive loop polls with a read deadline so it can notice context
// cancellation without closing the socket:
//
//	mc, err := transport.Listen(transport.Config{Group: "224.0.23.12", Port: 3671}, logger)
//	if err != nil {
//	    return err
//	}
//	defer mc.Close()
//	go mc.Run(ctx, func(datagram []byte) { dev.ProcessOnce(datagram) })
package transport
