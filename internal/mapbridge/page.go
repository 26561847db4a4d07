package mapbridge

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// handleMapPage serves the embedded map surface. The page connects back to
// /ws, applies every {action, ...data} command it receives and reports pan
// events as {type:"mapMove", payload:{lat,lng}}.
func (b *Bridge) handleMapPage(c *gin.Context) {
	page := strings.ReplaceAll(mapPage, "__MAP_KEY__", b.mapKey)
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(page))
}

const mapPage = `<!DOCTYPE html>
<html>
<head>
  <title>Map</title>
  <meta name="viewport" content="width=device-width, initial-scale=1.0, user-scalable=no">
  <script src="https://maps.googleapis.com/maps/api/js?key=__MAP_KEY__"></script>
  <style>
    html, body, #map { height: 100%; margin: 0; padding: 0; }
    #search {
      position: absolute; top: 12px; left: 12px; right: 12px; z-index: 1;
      padding: 10px; border: 0; border-radius: 8px;
      box-shadow: 0 1px 4px rgba(0,0,0,0.3);
    }
    .pulse {
      border-radius: 50%;
      background: rgba(66, 133, 244, 0.35);
      animation: pulse 1.6s ease-out infinite;
    }
    @keyframes pulse {
      0%   { transform: scale(0.4); opacity: 0.8; }
      100% { transform: scale(1.6); opacity: 0; }
    }
  </style>
</head>
<body>
<input id="search" type="text" placeholder="Search address">
<div id="map"></div>
<script>
  var map, directionsRenderer, pulseMarker;
  var markers = [];

  function initMap() {
    map = new google.maps.Map(document.getElementById('map'), {
      center: { lat: 0, lng: 0 },
      zoom: 14,
      disableDefaultUI: true,
    });
    directionsRenderer = new google.maps.DirectionsRenderer({ map: map, suppressMarkers: true });

    map.addListener('idle', function () {
      var center = map.getCenter();
      send({ type: 'mapMove', payload: { lat: center.lat(), lng: center.lng() } });
    });
  }

  var socket = new WebSocket('ws://' + location.host + '/ws');
  socket.onmessage = function (event) {
    var msg = JSON.parse(event.data);
    switch (msg.action) {
      case 'setMarkers':
      case 'drawRouteAndMarkers':
        drawRoute(msg.pickup, msg.destination);
        break;
      case 'focusPickup':
        if (msg.pickup) map.panTo(msg.pickup);
        break;
      case 'fitRoute':
        fitRoute();
        break;
      case 'startPulsingAnimation':
        startPulse(msg.pickup);
        break;
      case 'stopPulsingAnimation':
        stopPulse();
        break;
    }
  };

  function send(msg) {
    if (socket.readyState === WebSocket.OPEN) socket.send(JSON.stringify(msg));
  }

  document.getElementById('search').addEventListener('keydown', function (event) {
    if (event.key !== 'Enter' || !this.value) return;
    send({ type: 'searchAddress', payload: { query: this.value } });
  });

  function drawRoute(pickup, destination) {
    clearMarkers();
    if (!pickup || !destination) return;
    markers.push(new google.maps.Marker({ position: pickup, map: map }));
    markers.push(new google.maps.Marker({ position: destination, map: map }));
    new google.maps.DirectionsService().route(
      { origin: pickup, destination: destination, travelMode: 'DRIVING' },
      function (result, status) {
        if (status === 'OK') directionsRenderer.setDirections(result);
      }
    );
    fitRoute();
  }

  function fitRoute() {
    if (markers.length === 0) return;
    var bounds = new google.maps.LatLngBounds();
    markers.forEach(function (m) { bounds.extend(m.getPosition()); });
    map.fitBounds(bounds, 64);
  }

  function startPulse(at) {
    stopPulse();
    var position = at || map.getCenter();
    pulseMarker = new google.maps.Marker({
      position: position,
      map: map,
      icon: { path: google.maps.SymbolPath.CIRCLE, scale: 8, fillColor: '#4285F4', fillOpacity: 1, strokeWeight: 0 },
    });
    map.panTo(position);
  }

  function stopPulse() {
    if (pulseMarker) { pulseMarker.setMap(null); pulseMarker = null; }
  }

  function clearMarkers() {
    markers.forEach(function (m) { m.setMap(null); });
    markers = [];
  }

  initMap();
</script>
</body>
</html>`
